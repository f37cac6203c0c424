package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	name := fmt.Sprintf("lockfile-test-%d", os.Getpid())
	release, err := Acquire(name)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := Acquire(name); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second acquire should fail with ErrAlreadyRunning, got %v", err)
	}

	release()
	release2, err := Acquire(name)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}

func TestStaleLockIsReclaimed(t *testing.T) {
	name := fmt.Sprintf("lockfile-stale-%d", os.Getpid())
	path := filepath.Join(os.TempDir(), name+".lock")
	// 不太可能存活的 pid
	if err := os.WriteFile(path, []byte("999999999\n"), 0o644); err != nil {
		t.Fatalf("plant stale lock: %v", err)
	}
	t.Cleanup(func() { os.Remove(path) })

	release, err := Acquire(name)
	if err != nil {
		t.Fatalf("acquire over stale lock: %v", err)
	}
	release()
}
