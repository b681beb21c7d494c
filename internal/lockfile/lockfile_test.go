package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireLockWritesPID(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	defer lock.Release()

	content, err := os.ReadFile(filepath.Join(dir, LockFileName))
	if err != nil {
		t.Fatalf("failed to read lock file: %v", err)
	}
	expected := fmt.Sprintf("pid=%d\n", os.Getpid())
	if string(content) != expected {
		t.Errorf("lock file content mismatch, expected %q got %q", expected, string(content))
	}
}

func TestAcquireLockCreatesStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	defer lock.Release()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("state directory was not created: %v", err)
	}
}

func TestReleaseRemovesLockFile(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Error("lock file should be removed after release")
	}

	// Release twice must be a no-op.
	if err := lock.Release(); err != nil {
		t.Errorf("second Release should be nil, got %v", err)
	}

	// The directory can be locked again.
	lock2, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("re-acquire after release failed: %v", err)
	}
	lock2.Release()
}

func TestLockErrorUnwrap(t *testing.T) {
	cause := errors.New("resource temporarily unavailable")
	err := &LockError{LockPath: "/tmp/replyflow.lock", ExistingInfo: "PID 123 (running)", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("LockError should unwrap to its cause")
	}
	if msg := err.Error(); msg == "" {
		t.Error("expected a descriptive message")
	}
}

func TestExtractPID(t *testing.T) {
	cases := []struct {
		content string
		want    int
	}{
		{"pid=1234\n", 1234},
		{"pid=", 0},
		{"no pid here", 0},
		{"prefix pid=42 suffix", 42},
	}
	for _, tc := range cases {
		if got := extractPID(tc.content); got != tc.want {
			t.Errorf("extractPID(%q) = %d, want %d", tc.content, got, tc.want)
		}
	}
}
