package runstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

const (
	batchLockDirName   = ".batch.lock"
	batchLockOwnerFile = "owner.json"
)

// BatchLock keeps a single writer per output directory.
type BatchLock struct {
	lockDir string
	stale   *batchLockOwner
}

type batchLockOwner struct {
	PID       int    `json:"pid"`
	BatchID   string `json:"batch_id,omitempty"`
	Command   string `json:"command,omitempty"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

func AcquireBatchLock(outDir, batchID, command string) (BatchLock, error) {
	target := strings.TrimSpace(outDir)
	if target == "" {
		return BatchLock{}, fmt.Errorf("output directory is required")
	}
	if err := Mkdir(target); err != nil {
		return BatchLock{}, err
	}

	lockDir := filepath.Join(target, batchLockDirName)
	var stale *batchLockOwner
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		if !os.IsExist(err) {
			return BatchLock{}, fmt.Errorf("acquire batch lock for %s: %w", target, err)
		}
		var owner batchLockOwner
		if readErr := ReadJSON(filepath.Join(lockDir, batchLockOwnerFile), &owner); readErr != nil || owner.PID <= 0 {
			return BatchLock{}, fmt.Errorf("output directory is locked: %s (remove %s if no run is active, then continue with: solotranscribe resume --manifest %s)", target, lockDir, target)
		}
		if !owner.abandoned() {
			return BatchLock{}, fmt.Errorf(
				"output directory is locked by another %s: %s (pid=%d batch=%s since=%s host=%s)",
				nonEmpty(owner.Command, "run"), target, owner.PID, owner.BatchID, owner.CreatedAt, owner.Hostname,
			)
		}
		// The owner died without releasing; take the lock over.
		_ = os.Remove(filepath.Join(lockDir, batchLockOwnerFile))
		if rmErr := os.Remove(lockDir); rmErr != nil && !os.IsNotExist(rmErr) {
			return BatchLock{}, fmt.Errorf("clear stale batch lock %s: %w", lockDir, rmErr)
		}
		if err := os.Mkdir(lockDir, 0o755); err != nil {
			return BatchLock{}, fmt.Errorf("acquire batch lock for %s: %w", target, err)
		}
		stale = &owner
	}

	owner := batchLockOwner{
		PID:       os.Getpid(),
		BatchID:   batchID,
		Command:   command,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	if err := WriteJSON(filepath.Join(lockDir, batchLockOwnerFile), owner); err != nil {
		_ = os.Remove(lockDir)
		return BatchLock{}, fmt.Errorf("write batch lock owner for %s: %w", target, err)
	}
	return BatchLock{lockDir: lockDir, stale: stale}, nil
}

// Reclaimed describes the dead owner whose lock was taken over, or returns
// "" when the lock was free.
func (l BatchLock) Reclaimed() string {
	if l.stale == nil {
		return ""
	}
	return fmt.Sprintf("%s pid=%d batch=%s since=%s", nonEmpty(l.stale.Command, "run"), l.stale.PID, l.stale.BatchID, l.stale.CreatedAt)
}

// abandoned reports whether the owner ran on this host and is gone. Owners on
// other hosts are never considered abandoned.
func (o batchLockOwner) abandoned() bool {
	if o.Hostname != hostnameOrUnknown() {
		return false
	}
	return !processAlive(o.PID)
}

func processAlive(pid int) bool {
	if pid == os.Getpid() {
		return true
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return !errors.Is(err, os.ErrProcessDone) && !errors.Is(err, syscall.ESRCH)
}

func (l BatchLock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, batchLockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release batch lock %s: %w", l.lockDir, err)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return nonEmpty(strings.TrimSpace(host), "unknown")
}

func nonEmpty(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
