package state

import (
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/apsession/client/internal/errors"
)

// File is a snapshot on disk. A ".msgpack" or ".mp" extension selects
// MessagePack; anything else is JSON.
type File struct {
	Path string
}

// Format returns the encoding implied by the file extension.
func (f File) Format() Format {
	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".msgpack", ".mp":
		return FormatMsgpack
	default:
		return FormatJSON
	}
}

// WriteSnapshot encodes snap and replaces the file atomically: the data is
// written to a temporary file in the same directory and renamed over Path,
// so a failed save never leaves a truncated snapshot behind.
func (f File) WriteSnapshot(snap Snapshot) error {
	data, err := EncodeSnapshot(snap, f.Format())
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return apperrors.PersistenceIO("create directory", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return apperrors.PersistenceIO("create temp file in", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperrors.PersistenceIO("write", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return apperrors.PersistenceIO("sync", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.PersistenceIO("close", tmpName, err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		return apperrors.PersistenceIO("rename to", f.Path, err)
	}
	return nil
}

// ReadSnapshot reads and decodes the file.
func (f File) ReadSnapshot() (Snapshot, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Snapshot{}, apperrors.PersistenceIO("read", f.Path, err)
	}
	return DecodeSnapshot(data, f.Format())
}
