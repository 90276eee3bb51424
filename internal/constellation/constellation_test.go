package constellation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/defghij/diskxerciser/internal/xerr"
)

func newTestConfig(t *testing.T, dirCount, filesPerDir uint64, pageSize int, pageCount uint64) Config {
	t.Helper()
	root := t.TempDir()
	return Config{
		Roots:       []string{root},
		DirPrefix:   "shelf",
		DirCount:    dirCount,
		FilePrefix:  "book",
		FilesPerDir: filesPerDir,
		PageSize:    pageSize,
		PageCount:   pageCount,
	}
}

// TestInstantiateAndDestroy exercises scenario S1: dir_count=2, file_count=4,
// page_size=512, page_count=2 must produce 2 directories x 4 files of 1024
// bytes each, and Destroy must remove every one of them.
func TestInstantiateAndDestroy(t *testing.T) {
	cfg := newTestConfig(t, 2, 4, 512, 2)
	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Count() != 8 {
		t.Fatalf("Count = %d, want 8", c.Count())
	}
	if c.Size() != 1024 {
		t.Fatalf("Size = %d, want 1024", c.Size())
	}

	if err := c.Instantiate(); err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if !c.IsAssembled() {
		t.Fatal("expected constellation to be assembled after Instantiate")
	}

	for a := uint64(0); a < c.Count(); a++ {
		path, err := c.BookPath(a)
		if err != nil {
			t.Fatalf("BookPath(%d): %v", a, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat %s: %v", path, err)
		}
		if info.Size() != 1024 {
			t.Fatalf("file %s size = %d, want 1024", path, info.Size())
		}
	}

	if err := c.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if c.IsAssembled() {
		t.Fatal("expected constellation to be disassembled after Destroy")
	}
	for a := uint64(0); a < c.Count(); a++ {
		path, _ := c.BookPath(a)
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be removed", path)
		}
	}
}

// TestPathBijection exercises testable property 3: every absolute file id in
// range maps to a distinct path, and repeated derivation is stable.
func TestPathBijection(t *testing.T) {
	cfg := newTestConfig(t, 3, 5, 512, 1)
	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	seen := make(map[string]uint64)
	for a := uint64(0); a < c.Count(); a++ {
		p1, err := c.BookPath(a)
		if err != nil {
			t.Fatalf("BookPath(%d): %v", a, err)
		}
		p2, err := c.BookPath(a)
		if err != nil || p1 != p2 {
			t.Fatalf("BookPath(%d) not stable: %q vs %q", a, p1, p2)
		}
		if other, dup := seen[p1]; dup {
			t.Fatalf("absolute ids %d and %d collide on path %q", other, a, p1)
		}
		seen[p1] = a
	}
}

// TestOpenReadOnlyMissingIsNotFound exercises scenario S6: opening a file
// for read-only access before Instantiate surfaces NotFound.
func TestOpenReadOnlyMissingIsNotFound(t *testing.T) {
	cfg := newTestConfig(t, 1, 1, 512, 1)
	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = c.Open(0, true, false)
	if err == nil {
		t.Fatal("expected error opening nonexistent file read-only")
	}
	if xerr.KindOf(err) != xerr.KindNotFound {
		t.Fatalf("Kind = %v, want NotFound", xerr.KindOf(err))
	}
}

// TestOpenWriteCreatesOnDemand checks the read/write open matrix:
// write-only opens may create a missing file.
func TestOpenWriteCreatesOnDemand(t *testing.T) {
	cfg := newTestConfig(t, 1, 1, 512, 1)
	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	f, err := c.Open(0, false, true)
	if err != nil {
		t.Fatalf("Open(write-only): %v", err)
	}
	f.Close()

	path, _ := c.BookPath(0)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist after write-only open: %v", err)
	}
}

func TestNewRejectsInvalidLayout(t *testing.T) {
	root := t.TempDir()
	cfg := Config{Roots: []string{root}, DirCount: 0, FilesPerDir: 1, PageSize: 512, PageCount: 1}
	if _, err := New(cfg, nil); xerr.KindOf(err) != xerr.KindInvalidLayout {
		t.Fatalf("expected InvalidLayout for dir_count=0, got %v", err)
	}
}

func TestMultiRootDistribution(t *testing.T) {
	r1, r2 := t.TempDir(), t.TempDir()
	cfg := Config{
		Roots:       []string{r1, r2},
		DirPrefix:   "shelf",
		DirCount:    2,
		FilePrefix:  "book",
		FilesPerDir: 2,
		PageSize:    512,
		PageCount:   1,
	}
	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Instantiate(); err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer c.Destroy()

	var inR1, inR2 int
	for a := uint64(0); a < c.Count(); a++ {
		path, _ := c.BookPath(a)
		rel1, err1 := filepath.Rel(r1, path)
		rel2, err2 := filepath.Rel(r2, path)
		if err1 == nil && !filepath.IsAbs(rel1) && rel1[0] != '.' {
			inR1++
		}
		if err2 == nil && !filepath.IsAbs(rel2) && rel2[0] != '.' {
			inR2++
		}
	}
	if inR1 == 0 || inR2 == 0 {
		t.Fatalf("expected files distributed across both roots: r1=%d r2=%d", inR1, inR2)
	}
}

func TestRelease(t *testing.T) {
	cfg := newTestConfig(t, 1, 1, 512, 1)
	cfg.DropOnRelease = true
	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Instantiate(); err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	c.Release()
	if c.IsAssembled() {
		t.Fatal("expected Release to destroy when DropOnRelease is set")
	}
}
