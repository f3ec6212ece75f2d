package startup

import (
	"os"
	"path/filepath"
	"testing"
)

func mkFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestLoadOnceSucceedsWithExistingFiles(t *testing.T) {
	resetForTest()
	dir := t.TempDir()
	icu := mkFile(t, dir, "icudtl.dat")
	snap := mkFile(t, dir, "snapshot_blob.bin")

	if err := LoadOnce(icu, snap); err != nil {
		t.Fatalf("LoadOnce: %v", err)
	}
	if !Loaded() {
		t.Fatal("Loaded() = false after successful LoadOnce")
	}
}

func TestLoadOnceRejectsMissingICU(t *testing.T) {
	resetForTest()
	dir := t.TempDir()
	snap := mkFile(t, dir, "snapshot_blob.bin")

	if err := LoadOnce(filepath.Join(dir, "missing.dat"), snap); err == nil {
		t.Fatal("expected error for missing ICU file")
	}
	if Loaded() {
		t.Fatal("Loaded() = true after a failed LoadOnce")
	}
}

func TestLoadOnceRejectsEmptyPaths(t *testing.T) {
	resetForTest()
	if err := LoadOnce("", ""); err == nil {
		t.Fatal("expected error for empty ICU path")
	}
}

func TestLoadOnceOnlyRunsFirstCall(t *testing.T) {
	resetForTest()
	dir := t.TempDir()
	icu := mkFile(t, dir, "icudtl.dat")
	snap := mkFile(t, dir, "snapshot_blob.bin")

	if err := LoadOnce(icu, snap); err != nil {
		t.Fatalf("first LoadOnce: %v", err)
	}
	// A second call with paths that would fail on their own must still
	// return the first call's cached success.
	if err := LoadOnce("", ""); err != nil {
		t.Fatalf("second LoadOnce should return cached success, got: %v", err)
	}
}
