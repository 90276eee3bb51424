// Package constellation implements the bijective mapping from a flat page
// identifier space onto a two- or three-level directory/file hierarchy
// spread across one or more filesystem roots, with construct/destroy
// lifecycle guarantees.
//
// Layout, for a constellation with roots R, D directories per root group,
// and F files per directory:
//
//	R[0]/
//	  shelf0/
//	    book000
//	    book002
//	  shelf1/
//	    book001
//	    ...
//
// Path derivation for absolute file id a in [0, N_files) follows
// bookcase.rs/constellation.rs's numeric zero-padding, generalized to
// multiple roots: root = R[a % len(R)]; dir = dir_prefix + pad(a % D);
// file = file_prefix + pad(a). Two runs with the same config always derive
// the same paths, independent of filesystem state.
package constellation

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/defghij/diskxerciser/internal/xerr"
	"github.com/defghij/diskxerciser/internal/xlog"
)

// Options carries file-layer tuning not part of the directory/count algebra.
type Options struct {
	DirectIO bool
}

// Config is the immutable configuration record for a Constellation.
type Config struct {
	Roots        []string
	DirPrefix    string
	DirCount     uint64
	FilePrefix   string
	FilesPerDir  uint64
	PageSize     int
	PageCount    uint64 // pages per file
	Options      Options
	DropOnRelease bool
}

// Constellation is an immutable, freely-shareable layout descriptor plus a
// constructed flag. It touches the filesystem only via Instantiate, Open,
// and Destroy.
type Constellation struct {
	cfg        Config
	nFiles     uint64
	ppf        uint64
	nPages     uint64
	dirWidth   int
	fileWidth  int
	log        *xlog.Logger
}

// New validates cfg's layout invariants and returns a Constellation
// descriptor. It does NOT touch the filesystem.
func New(cfg Config, log *xlog.Logger) (*Constellation, error) {
	const op = "constellation.New"

	if len(cfg.Roots) == 0 {
		return nil, xerr.New(op, xerr.KindInvalidLayout, fmt.Errorf("at least one root is required"))
	}
	for _, r := range cfg.Roots {
		if _, err := os.Stat(r); err != nil {
			return nil, xerr.New(op, xerr.KindInvalidLayout, fmt.Errorf("root %q: %w", r, err))
		}
	}
	if cfg.DirCount < 1 {
		return nil, xerr.New(op, xerr.KindInvalidLayout, fmt.Errorf("dir_count must be >= 1"))
	}
	if cfg.FilesPerDir < 1 {
		return nil, xerr.New(op, xerr.KindInvalidLayout, fmt.Errorf("file_count must be >= 1"))
	}
	if cfg.PageSize <= 0 {
		return nil, xerr.New(op, xerr.KindInvalidLayout, fmt.Errorf("page_size must be > 0"))
	}
	if cfg.PageCount < 1 {
		return nil, xerr.New(op, xerr.KindInvalidLayout, fmt.Errorf("page_count must be >= 1"))
	}

	nFiles := cfg.DirCount * cfg.FilesPerDir
	fileSizeBytes := cfg.PageCount * uint64(cfg.PageSize)
	if fileSizeBytes%uint64(cfg.PageSize) != 0 {
		return nil, xerr.New(op, xerr.KindInvalidLayout, fmt.Errorf("file_size_bytes must be a multiple of page_size"))
	}
	ppf := fileSizeBytes / uint64(cfg.PageSize)

	if log == nil {
		log = xlog.New(xlog.LevelNone)
	}

	return &Constellation{
		cfg:       cfg,
		nFiles:    nFiles,
		ppf:       ppf,
		nPages:    nFiles * ppf,
		dirWidth:  digitWidth(cfg.DirCount),
		fileWidth: digitWidth(nFiles),
		log:       log,
	}, nil
}

// digitWidth returns the number of base-10 digits needed to print n — the
// same ilog10(n)+1 zero-pad width the original bookcase.rs/constellation.rs
// use (one digit more than the largest index, n-1, needs when n is an exact
// power of 10).
func digitWidth(n uint64) int {
	if n == 0 {
		return 1
	}
	return len(strconv.FormatUint(n, 10))
}

// Count returns the total number of files in the constellation.
func (c *Constellation) Count() uint64 { return c.nFiles }

// Size returns the size, in bytes, of each file.
func (c *Constellation) Size() uint64 { return c.ppf * uint64(c.cfg.PageSize) }

// ShelfCount returns the number of directories.
func (c *Constellation) ShelfCount() uint64 { return c.cfg.DirCount }

// PageCount returns the total number of pages across the whole constellation.
func (c *Constellation) PageCount() uint64 { return c.nPages }

// PagesPerFile returns the number of pages in a single file.
func (c *Constellation) PagesPerFile() uint64 { return c.ppf }

// PageSize returns the configured page size in bytes.
func (c *Constellation) PageSize() int { return c.cfg.PageSize }

// FileAndOffset maps an absolute page id q into (absolute file id, page
// index within that file).
func (c *Constellation) FileAndOffset(q uint64) (fileID, pageInFile uint64) {
	return q / c.ppf, q % c.ppf
}

// ShelfPath returns the directory path for directory index d (0 <= d < D).
func (c *Constellation) ShelfPath(root string, d uint64) string {
	dir := fmt.Sprintf("%s%0*d", c.cfg.DirPrefix, c.dirWidth, d%c.cfg.DirCount)
	return filepath.Join(root, dir)
}

// BookPath returns the full path of absolute file id a.
func (c *Constellation) BookPath(a uint64) (string, error) {
	if a >= c.nFiles {
		return "", xerr.New("Constellation.BookPath", xerr.KindInvalidArgument,
			fmt.Errorf("absolute file id %d out of range [0,%d)", a, c.nFiles))
	}
	root := c.cfg.Roots[a%uint64(len(c.cfg.Roots))]
	dirIdx := a % c.cfg.DirCount
	shelf := c.ShelfPath(root, dirIdx)
	file := fmt.Sprintf("%s%0*d", c.cfg.FilePrefix, c.fileWidth, a)
	return filepath.Join(shelf, file), nil
}

// Instantiate idempotently creates every directory then every file,
// truncated/extended to the configured file size.
func (c *Constellation) Instantiate() error {
	const op = "Constellation.Instantiate"

	for d := uint64(0); d < c.cfg.DirCount; d++ {
		for _, root := range c.cfg.Roots {
			shelf := c.ShelfPath(root, d)
			if err := os.MkdirAll(shelf, 0o755); err != nil {
				return xerr.New(op, classifyOSErr(err), fmt.Errorf("mkdir %s: %w", shelf, err))
			}
		}
	}

	size := int64(c.Size())
	for a := uint64(0); a < c.nFiles; a++ {
		path, err := c.BookPath(a)
		if err != nil {
			return xerr.New(op, xerr.KindInvalidLayout, err)
		}
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return xerr.New(op, classifyOSErr(err), fmt.Errorf("create %s: %w", path, err))
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return xerr.New(op, classifyOSErr(err), fmt.Errorf("stat %s: %w", path, err))
		}
		if info.Size() != size {
			if err := f.Truncate(size); err != nil {
				f.Close()
				return xerr.New(op, classifyOSErr(err), fmt.Errorf("truncate %s to %d: %w", path, size, err))
			}
		}
		if err := f.Close(); err != nil {
			return xerr.New(op, classifyOSErr(err), fmt.Errorf("close %s: %w", path, err))
		}
	}
	c.log.Debugf("instantiated constellation: %d files across %d directories, %d bytes each", c.nFiles, c.cfg.DirCount, size)
	return nil
}

// Open opens absolute file id a. When write is true and read is false, the
// file is created on demand; when read-only, a missing file surfaces
// NotFound. O_DIRECT is applied when the constellation's options request it.
func (c *Constellation) Open(a uint64, read, write bool) (*os.File, error) {
	const op = "Constellation.Open"

	path, err := c.BookPath(a)
	if err != nil {
		return nil, err
	}

	flags := 0
	switch {
	case read && write:
		flags = os.O_RDWR
	case write:
		flags = os.O_WRONLY
	default:
		flags = os.O_RDONLY
	}
	createOnDemand := write && !read
	if createOnDemand {
		flags |= os.O_CREATE
	}
	flags |= directIOFlag(c.cfg.Options.DirectIO)

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerr.New(op, xerr.KindNotFound, fmt.Errorf("%s: %w", path, err))
		}
		if os.IsPermission(err) {
			return nil, xerr.New(op, xerr.KindPermissionDenied, fmt.Errorf("%s: %w", path, err))
		}
		return nil, xerr.New(op, xerr.KindIOError, fmt.Errorf("%s: %w", path, err))
	}
	return f, nil
}

// Destroy removes every file then every directory. Errors surface unchanged
// (not wrapped into a fatal abort) so callers can decide policy.
func (c *Constellation) Destroy() error {
	const op = "Constellation.Destroy"

	for a := uint64(0); a < c.nFiles; a++ {
		path, err := c.BookPath(a)
		if err != nil {
			return xerr.New(op, xerr.KindInvalidLayout, err)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return xerr.New(op, classifyOSErr(err), fmt.Errorf("remove %s: %w", path, err))
		}
	}
	for d := uint64(0); d < c.cfg.DirCount; d++ {
		for _, root := range c.cfg.Roots {
			shelf := c.ShelfPath(root, d)
			if err := os.Remove(shelf); err != nil && !os.IsNotExist(err) {
				return xerr.New(op, classifyOSErr(err), fmt.Errorf("rmdir %s: %w", shelf, err))
			}
		}
	}
	c.log.Debugf("destroyed constellation: %d files", c.nFiles)
	return nil
}

// Release runs the auto-release hook: when the constellation was configured
// with DropOnRelease, it calls Destroy and logs (without propagating) any
// error, mirroring the original's Drop impl. Call this from a defer at the
// scope that owns the Constellation's lifetime — Go has no destructors.
func (c *Constellation) Release() {
	if !c.cfg.DropOnRelease {
		return
	}
	if err := c.Destroy(); err != nil {
		c.log.Warningf("auto-release destroy failed: %v", err)
	}
}

// IsAssembled verifies every expected file exists on disk.
func (c *Constellation) IsAssembled() bool {
	for a := uint64(0); a < c.nFiles; a++ {
		path, err := c.BookPath(a)
		if err != nil {
			return false
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return false
		}
	}
	return true
}

func classifyOSErr(err error) xerr.Kind {
	switch {
	case os.IsNotExist(err):
		return xerr.KindNotFound
	case os.IsPermission(err):
		return xerr.KindPermissionDenied
	case os.IsExist(err):
		return xerr.KindAlreadyExists
	default:
		return xerr.KindIOError
	}
}
