// Package gcs implements the stores.Store interface over Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/gorilla/schema"
	log "github.com/sirupsen/logrus"
	"go.litevfs.dev/core/stores"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// StoreQueryArgs contains fields that are parsed from the query arguments
// of a gs:// replica store URL.
type StoreQueryArgs struct{}

type store struct {
	bucket string
	prefix string
	args   StoreQueryArgs
	client *storage.Client
}

// New creates a new GCS Store from the provided URL.
func New(ep *url.URL) (stores.Store, error) {
	var args StoreQueryArgs
	if err := parseStoreArgs(ep, &args); err != nil {
		return nil, err
	}
	// Omit leading slash from bucket prefix. Note that ReplicaStore already
	// enforces that URL Paths end in '/'.
	var bucket, prefix = ep.Host, ep.Path[1:]

	var ctx = context.Background()

	var creds, err = google.FindDefaultCredentials(ctx, storage.ScopeReadOnly)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx, option.WithTokenSource(creds.TokenSource))
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"bucket":    bucket,
		"prefix":    prefix,
		"ProjectID": creds.ProjectID,
	}).Info("constructed new GCS client")

	return &store{
		bucket: bucket,
		prefix: prefix,
		args:   args,
		client: client,
	}, nil
}

func (s *store) Provider() string { return "gcs" }

func (s *store) Exists(ctx context.Context, path string) (bool, error) {
	var _, err = s.object(path).Attrs(ctx)
	if err == nil {
		return true, nil
	} else if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, err
}

func (s *store) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	return s.object(path).NewReader(ctx)
}

func (s *store) Put(ctx context.Context, path string, content io.ReaderAt, contentLength int64, contentEncoding string) error {
	var w = s.object(path).NewWriter(ctx)
	if contentEncoding != "" {
		w.ContentEncoding = contentEncoding
	}
	if _, err := io.Copy(w, io.NewSectionReader(content, 0, contentLength)); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (s *store) List(ctx context.Context, prefix string, callback func(path string, modTime time.Time) error) error {
	prefix = s.prefix + prefix
	var it = s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	for {
		var obj, err = it.Next()
		if err == iterator.Done {
			return nil
		} else if err != nil {
			return err
		} else if strings.HasSuffix(obj.Name, "/") {
			continue // Ignore directory-like objects
		}
		if err = callback(strings.TrimPrefix(obj.Name, prefix), obj.Updated); err != nil {
			return err
		}
	}
}

func (s *store) Remove(ctx context.Context, path string) error {
	return s.object(path).Delete(ctx)
}

func (s *store) IsNotFound(err error) bool {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return true
	}
	var gErr *googleapi.Error
	return errors.As(err, &gErr) && gErr.Code == http.StatusNotFound
}

func (s *store) IsAuthError(err error) bool {
	if errors.Is(err, storage.ErrBucketNotExist) {
		return true
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch gErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return true
		}
	}
	return false
}

func (s *store) object(path string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + path)
}

func parseStoreArgs(ep *url.URL, args interface{}) error {
	var decoder = schema.NewDecoder()
	decoder.IgnoreUnknownKeys(false)

	if q, err := url.ParseQuery(ep.RawQuery); err != nil {
		return err
	} else if err = decoder.Decode(args, q); err != nil {
		return fmt.Errorf("parsing store URL arguments: %s", err)
	}
	return nil
}
