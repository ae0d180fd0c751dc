// Package fs implements the stores.Store interface over a local filesystem
// or NFS mount (file:// scheme).
package fs

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/schema"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.litevfs.dev/core/stores"
)

// FileSystemStoreRoot is the filesystem path which roots segment paths of a
// file:// replica store. It must be set at program startup prior to use.
var FileSystemStoreRoot = "/dev/null/must/configure/file/store/root"

// FileSystem is the afero filesystem against which file:// stores operate.
// Tests may substitute afero.NewMemMapFs().
var FileSystem = afero.NewOsFs()

// StoreQueryArgs contains fields that are parsed from the query arguments
// of a file:// replica store URL.
type StoreQueryArgs struct{}

type store struct {
	args   StoreQueryArgs
	prefix string
}

// New creates a new filesystem Store from the provided URL.
func New(ep *url.URL) (stores.Store, error) {
	var s = &store{prefix: ep.Path}
	return s, parseStoreArgs(ep, &s.args)
}

func (s *store) Provider() string { return "fs" }

func (s *store) Exists(_ context.Context, path string) (bool, error) {
	if _, err := FileSystem.Stat(s.fsPath(path)); os.IsNotExist(err) {
		return false, nil
	} else if err == nil {
		return true, nil
	} else {
		return false, err
	}
}

func (s *store) Get(_ context.Context, path string) (io.ReadCloser, error) {
	return FileSystem.Open(s.fsPath(path))
}

func (s *store) Put(_ context.Context, path string, content io.ReaderAt, contentLength int64, contentEncoding string) error {
	var fsPath = s.fsPath(path)

	if err := FileSystem.MkdirAll(filepath.Dir(fsPath), 0750); err != nil {
		return err
	}

	var f, err = afero.TempFile(FileSystem, filepath.Dir(fsPath), ".partial-"+filepath.Base(fsPath))
	if err != nil {
		return err
	}

	defer func(name string) {
		if rmErr := FileSystem.Remove(name); rmErr != nil && !os.IsNotExist(rmErr) {
			log.WithFields(log.Fields{"err": rmErr, "path": fsPath}).
				Warn("failed to cleanup temp file")
		}
	}(f.Name())

	// io.Copy only needs io.Reader, so we use io.NewSectionReader to adapt io.ReaderAt
	_, err = io.Copy(f, io.NewSectionReader(content, 0, contentLength))

	if err == nil {
		err = f.Close()
	}
	if err == nil {
		err = FileSystem.Rename(f.Name(), fsPath)
	}
	return err
}

func (s *store) List(_ context.Context, prefix string, callback func(path string, modTime time.Time) error) error {
	var dir = s.fsPath(prefix)

	if _, err := FileSystem.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return afero.Walk(FileSystem, dir,
		func(name string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			} else if info.IsDir() {
				return nil
			} else if strings.HasPrefix(info.Name(), ".partial-") {
				return nil // Skip still-writing temporaries.
			}
			var rel = strings.TrimPrefix(filepath.ToSlash(name), filepath.ToSlash(dir))
			return callback(strings.TrimPrefix(rel, "/"), info.ModTime())
		})
}

func (s *store) Remove(_ context.Context, path string) error {
	return FileSystem.Remove(s.fsPath(path))
}

func (s *store) IsNotFound(err error) bool { return os.IsNotExist(err) }

func (s *store) IsAuthError(err error) bool { return os.IsPermission(err) }

func (s *store) fsPath(path string) string {
	return filepath.Join(FileSystemStoreRoot, filepath.FromSlash(s.prefix+path))
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
