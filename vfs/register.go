package vfs

import (
	"sync"

	log "github.com/sirupsen/logrus"
	pb "go.litevfs.dev/core/protocol"
)

var (
	registerMu sync.Mutex
	registered *FileSystem
)

// Register installs |fs| as the process-wide FileSystem. Registration happens
// at most once: concurrent and repeated calls with the same FileSystem are
// no-ops, while registering a second distinct FileSystem is an error since
// open handles of the first would silently change behavior.
func Register(fs *FileSystem) error {
	registerMu.Lock()
	defer registerMu.Unlock()

	if registered == fs {
		return nil
	}
	if registered != nil {
		return pb.NewValidationError("a FileSystem is already registered")
	}
	registered = fs
	log.Debug("registered virtual filesystem")
	return nil
}

// Registered returns the process-wide FileSystem, if one has been registered.
func Registered() (*FileSystem, bool) {
	registerMu.Lock()
	defer registerMu.Unlock()
	return registered, registered != nil
}

// Reset clears the process-wide registration. It exists for tests.
func Reset() {
	registerMu.Lock()
	defer registerMu.Unlock()
	registered = nil
}
