package offline

import (
	"errors"
	"fmt"
)

var (
	// ErrOffline is reported when a sync is attempted without connectivity.
	ErrOffline = errors.New("not synced: device is offline")

	// ErrSyncInProgress is reported when a sync or download is already running.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrNotConflicted is returned when resolving a record that is not in conflict.
	ErrNotConflicted = errors.New("inspection is not in conflict")
)

// StorageError is a failure of the device-local store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("local storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// RemoteError is a transport failure or a non-success answer from the server.
// Message carries the server's message verbatim when there was one.
type RemoteError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Message != "" && e.StatusCode != 0:
		return fmt.Sprintf("server rejected request (%d): %s", e.StatusCode, e.Message)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("remote: %v", e.Err)
	}
	return "remote: request failed"
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsRemoteError reports whether err is or wraps a *RemoteError.
func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func remoteErr(err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re
	}
	return &RemoteError{Err: err}
}
