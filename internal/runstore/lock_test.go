package runstore

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireBatchLock_BlocksConcurrentAcquire(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")

	lock, err := AcquireBatchLock(outDir, "batch_a", "run")
	if err != nil {
		t.Fatalf("acquire first lock: %v", err)
	}
	defer func() {
		_ = lock.Release()
	}()

	_, err = AcquireBatchLock(outDir, "batch_b", "retry")
	if err == nil {
		t.Fatalf("expected second acquire to fail")
	}
	if !strings.Contains(err.Error(), "batch_a") {
		t.Fatalf("expected lock owner in error, got %v", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("release lock: %v", err)
	}

	lock2, err := AcquireBatchLock(outDir, "batch_b", "retry")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if err := lock2.Release(); err != nil {
		t.Fatalf("release second lock: %v", err)
	}
}

// exitedPID returns the pid of a child that has already been reaped.
func exitedPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	if err := cmd.Run(); err != nil {
		t.Fatalf("run true: %v", err)
	}
	return cmd.Process.Pid
}

func plantLock(t *testing.T, outDir string, owner batchLockOwner) {
	t.Helper()
	lockDir := filepath.Join(outDir, batchLockDirName)
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := WriteJSON(filepath.Join(lockDir, batchLockOwnerFile), owner); err != nil {
		t.Fatal(err)
	}
}

func TestAcquireBatchLock_TakesOverDeadOwner(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")
	plantLock(t, outDir, batchLockOwner{
		PID:       exitedPID(t),
		BatchID:   "batch_crashed",
		Command:   "run",
		CreatedAt: "2026-03-01T09:00:00Z",
		Hostname:  hostnameOrUnknown(),
	})

	lock, err := AcquireBatchLock(outDir, "batch_crashed", "resume")
	if err != nil {
		t.Fatalf("expected stale lock takeover, got %v", err)
	}
	defer func() {
		_ = lock.Release()
	}()
	if !strings.Contains(lock.Reclaimed(), "batch_crashed") {
		t.Fatalf("expected previous owner reported, got %q", lock.Reclaimed())
	}

	var owner batchLockOwner
	if err := ReadJSON(filepath.Join(outDir, batchLockDirName, batchLockOwnerFile), &owner); err != nil {
		t.Fatal(err)
	}
	if owner.PID != os.Getpid() || owner.Command != "resume" {
		t.Fatalf("expected lock rewritten for this process, got %+v", owner)
	}
}

func TestAcquireBatchLock_KeepsForeignHostLock(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")
	plantLock(t, outDir, batchLockOwner{
		PID:       exitedPID(t),
		BatchID:   "batch_remote",
		Command:   "run",
		CreatedAt: "2026-03-01T09:00:00Z",
		Hostname:  "some-other-host.invalid",
	})

	_, err := AcquireBatchLock(outDir, "batch_remote", "resume")
	if err == nil || !strings.Contains(err.Error(), "some-other-host.invalid") {
		t.Fatalf("expected lock held by remote host, got %v", err)
	}
}

func TestAcquireBatchLock_UnreadableOwnerSuggestsResume(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")
	if err := os.MkdirAll(filepath.Join(outDir, batchLockDirName), 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := AcquireBatchLock(outDir, "batch_x", "run")
	if err == nil || !strings.Contains(err.Error(), "solotranscribe resume --manifest "+outDir) {
		t.Fatalf("expected resume hint, got %v", err)
	}
}
