package lifecycle

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestPIDFile_WriteCheckRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.pid")

	p, err := WritePIDFile(path)
	if err != nil {
		t.Fatalf("WritePIDFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("pid file not created: %v", err)
	}
	if string(data) != strconv.Itoa(os.Getpid()) {
		t.Errorf("pid file content = %q, want %d", data, os.Getpid())
	}
	if err := p.Check(); err != nil {
		t.Errorf("Check() error = %v", err)
	}

	if err := p.Remove(); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("pid file still present after Remove: %v", err)
	}
	if err := p.Remove(); err != nil {
		t.Errorf("second Remove() error = %v, want nil", err)
	}
	if err := p.Check(); !errors.Is(err, ErrPIDFileMissing) {
		t.Errorf("Check() after remove = %v, want ErrPIDFileMissing", err)
	}
}

func TestPIDFile_OverwritesStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.pid")
	if err := os.WriteFile(path, []byte("999999\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := WritePIDFile(path); err != nil {
		t.Fatalf("WritePIDFile() error = %v", err)
	}
	pid, err := ReadPID(path)
	if err != nil {
		t.Fatal(err)
	}
	if pid != os.Getpid() {
		t.Errorf("ReadPID() = %d, want %d", pid, os.Getpid())
	}
}

func TestPIDFile_RemoveFailureIsReportedOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.pid")
	p, err := WritePIDFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	if err := p.Remove(); err == nil {
		t.Error("Remove() of a vanished file should report an error")
	}
	if err := os.WriteFile(path, []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	_ = p.Remove()
	if _, err := os.Stat(path); err != nil {
		t.Error("second Remove() must not touch the filesystem")
	}
}

func TestPIDFile_WriteFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "server.pid")
	if _, err := WritePIDFile(path); err == nil {
		t.Error("WritePIDFile() into a missing directory should fail")
	}
}

func TestPIDFile_NilRemove(t *testing.T) {
	var p *PIDFile
	if err := p.Remove(); err != nil {
		t.Errorf("nil Remove() = %v", err)
	}
}
