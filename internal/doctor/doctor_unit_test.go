package doctor

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckCacheDir(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		if err := checkCacheDir(""); err == nil {
			t.Error("checkCacheDir(\"\") = nil; want error")
		}
	})

	t.Run("existing dir", func(t *testing.T) {
		if err := checkCacheDir(t.TempDir()); err != nil {
			t.Errorf("checkCacheDir() = %v; want nil", err)
		}
	})

	t.Run("creates nested dirs", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "a", "b", "c")

		if err := checkCacheDir(dir); err != nil {
			t.Fatalf("checkCacheDir() = %v; want nil", err)
		}

		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("expected %s to be a directory, got %v, %v", dir, info, err)
		}
	})

	t.Run("leaves no probe files", func(t *testing.T) {
		dir := t.TempDir()

		if err := checkCacheDir(dir); err != nil {
			t.Fatalf("checkCacheDir() = %v; want nil", err)
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("ReadDir: %v", err)
		}

		if len(entries) != 0 {
			t.Errorf("probe file left behind: %v", entries)
		}
	})

	t.Run("file in path", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "blocker")
		if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
			t.Fatalf("write blocker: %v", err)
		}

		if err := checkCacheDir(filepath.Join(blocker, "cache")); err == nil {
			t.Error("checkCacheDir() = nil; want error when the path crosses a file")
		}
	})
}
