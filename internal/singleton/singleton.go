// SPDX-License-Identifier: AGPL-3.0-only

// Package singleton guards the scenario database with a file lock so that at
// most one proxy instance mutates it at a time.
package singleton

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock is an acquired ownership lock for a scenario database path.
type Lock struct {
	flock *flock.Flock
}

// TryAcquire attempts to take ownership of the scenario database at dbPath.
// It returns the lock and true when this process becomes the owner, or nil
// and false when another proxy instance already holds it. A crashed owner
// does not wedge the lock; the OS releases flocks on process exit.
func TryAcquire(dbPath string) (*Lock, bool, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, false, fmt.Errorf("singleton: create lock directory: %w", err)
	}
	lockPath := dbPath + ".lock"

	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("singleton: try lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, false, nil
	}
	return &Lock{flock: fl}, true, nil
}

// Release gives up ownership of the scenario database.
func (l *Lock) Release() error {
	return l.flock.Unlock()
}
