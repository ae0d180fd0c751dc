package protocol

import (
	"net/url"
)

// ReplicaStore defines a storage backend base path under which a replica's
// transaction-log segments are stored. It is a URL, where the scheme defines
// the storage backend service. As ReplicaStores "root" remote storage
// locations of segments, their path component must end in a trailing slash.
//
// Currently supported schemes are "gs" for Google Cloud Storage, "s3" for
// Amazon S3, "azure" for Azure Blob Storage, "file" for a local file-system /
// NFS mount, and "memory" for an in-process store used by tests. Eg:
//
//   - s3://bucket-name/a/sub-path/?profile=a-shared-credentials-profile
//   - gs://bucket-name/a/sub-path/
//   - file:///a/local/volume/mount/
//
// ReplicaStore implementations may support additional configuration which
// can be declared via URL query arguments. The meaning of these query
// arguments and values are specific to the store in question; consult the
// StoreQueryArgs of the backend package for details.
type ReplicaStore string

// Validate returns an error if the ReplicaStore is not well-formed.
func (rs ReplicaStore) Validate() error {
	var _, err = rs.parse()
	return err
}

// URL returns the ReplicaStore as a URL. The ReplicaStore must Validate, or URL panics.
func (rs ReplicaStore) URL() *url.URL {
	if url, err := rs.parse(); err == nil {
		return url
	} else {
		panic(err.Error())
	}
}

func (rs ReplicaStore) parse() (*url.URL, error) {
	var url, err = url.Parse(string(rs))
	if err != nil {
		return nil, &ValidationError{Err: err}
	} else if !url.IsAbs() {
		return nil, NewValidationError("not absolute (%s)", rs)
	}

	switch url.Scheme {
	case "s3", "gs", "azure", "memory":
		if url.Host == "" {
			return nil, NewValidationError("missing bucket (%s)", rs)
		}
	case "file":
		if url.Host != "" {
			return nil, NewValidationError("file scheme cannot have host (%s)", rs)
		}
	default:
		return nil, NewValidationError("invalid scheme (%s)", url.Scheme)
	}

	if path := url.Path; len(path) == 0 || path[len(path)-1] != '/' {
		return nil, NewValidationError("path component doesn't end in '/' (%s)", url.Path)
	}
	return url, nil
}
