package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LockFileName is the file held exclusively for as long as a database opened
// by Open stays open.
const LockFileName = "syncqueue.lock"

// ErrLocked is returned by Open when another process, or another handle in
// this one, already owns the data directory.
var ErrLocked = errors.New("data directory is locked by another process")

type dirLock struct {
	f *os.File
}

func lockDir(dataDir string) (*dirLock, error) {
	f, err := os.OpenFile(filepath.Join(dataDir, LockFileName), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}

	// owner pid, for whoever finds the directory locked
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0)
	}
	return &dirLock{f: f}, nil
}

// release drops the lock; closing the descriptor unlocks it.
func (l *dirLock) release() error {
	return l.f.Close()
}
