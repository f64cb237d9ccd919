// Package walker produces a lazy, depth-bounded, read-only sequence of the
// regular files under a scan root.
package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/JakeFAU/sawdisk/internal/scan"
)

var (
	// ErrNotDirectory is returned when the scan root is not a directory.
	ErrNotDirectory = errors.New("scan root is not a directory")
	// ErrOutsideRoot marks symlinks that resolve outside the scan root.
	ErrOutsideRoot = errors.New("symlink resolves outside scan root")
	// ErrAlreadyVisited marks symlinked directories whose target was walked before.
	ErrAlreadyVisited = errors.New("directory already visited")
	// ErrAlreadyEmitted marks files whose real path was emitted under another name.
	ErrAlreadyEmitted = errors.New("file already emitted")
	// ErrRootGone is yielded when the scan root disappears mid-walk.
	ErrRootGone = errors.New("scan root disappeared")
)

// DefaultSkipDirs lists volume bookkeeping directories that are never entered.
var DefaultSkipDirs = []string{".Spotlight-V100", ".Trashes", ".TemporaryItems", ".fseventsd"}

// Options configures one traversal.
type Options struct {
	// MaxDepth bounds descent. The root directory is depth 0 and a file carries
	// the depth of the directory holding it. scan.Unbounded disables the limit.
	MaxDepth int
	SkipDirs []string
}

// Observer receives traversal bookkeeping that is not a file emission.
type Observer interface {
	DirectoryVisited(path string, depth int)
	EntrySkipped(path string, err error)
}

// Walker traverses directories depth-first in lexical order.
type Walker struct {
	opts   Options
	skip   map[string]struct{}
	logger *zap.Logger
}

// New constructs a Walker.
func New(opts Options, logger *zap.Logger) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	skip := make(map[string]struct{}, len(opts.SkipDirs))
	for _, name := range opts.SkipDirs {
		skip[name] = struct{}{}
	}
	return &Walker{opts: opts, skip: skip, logger: logger}
}

// CheckRoot verifies root exists and is a directory.
func CheckRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat scan root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", root, ErrNotDirectory)
	}
	return nil
}

// Walk returns a single-use sequence of files under root. A non-nil error in
// the sequence is fatal and ends it; per-entry failures are reported to obs
// and skipped. The sequence ends early when ctx is done.
func (w *Walker) Walk(ctx context.Context, root string, obs Observer) iter.Seq2[scan.FileRef, error] {
	if obs == nil {
		obs = nopObserver{}
	}
	return func(yield func(scan.FileRef, error) bool) {
		realRoot, err := filepath.EvalSymlinks(root)
		if err != nil {
			yield(scan.FileRef{}, fmt.Errorf("resolve scan root: %w", err))
			return
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			yield(scan.FileRef{}, fmt.Errorf("read scan root: %w", err))
			return
		}
		t := &traversal{
			w:        w,
			ctx:      ctx,
			root:     root,
			realRoot: realRoot,
			obs:      obs,
			yield:    yield,
			visited:  map[string]struct{}{realRoot: {}},
		}
		obs.DirectoryVisited(root, 0)
		if !t.entries(root, realRoot, 0, entries) || ctx.Err() != nil {
			return
		}
		// Files queued before an unmount leave no failing entry behind.
		if err := CheckRoot(root); err != nil {
			yield(scan.FileRef{}, fmt.Errorf("%w: %w", ErrRootGone, err))
		}
	}
}

type traversal struct {
	w        *Walker
	ctx      context.Context
	root     string
	realRoot string
	obs      Observer
	yield    func(scan.FileRef, error) bool
	// visited holds the real paths of walked directories and emitted files.
	visited map[string]struct{}
}

func (t *traversal) allowDepth(depth int) bool {
	return t.w.opts.MaxDepth < 0 || depth <= t.w.opts.MaxDepth
}

// entries processes the listing of dir and reports false once iteration must stop.
func (t *traversal) entries(dir, realDir string, depth int, entries []fs.DirEntry) bool {
	for _, entry := range entries {
		if t.ctx.Err() != nil {
			return false
		}
		path := filepath.Join(dir, entry.Name())
		realPath := filepath.Join(realDir, entry.Name())
		mode := entry.Type()

		if mode&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil {
				if !t.fail(path, err) {
					return false
				}
				continue
			}
			if !t.inside(resolved) {
				t.skipped(path, ErrOutsideRoot)
				continue
			}
			info, err := os.Stat(resolved)
			if err != nil {
				if !t.fail(path, err) {
					return false
				}
				continue
			}
			if info.IsDir() {
				if !t.dir(path, resolved, entry.Name(), depth+1) {
					return false
				}
				continue
			}
			if info.Mode().IsRegular() {
				if !t.file(path, resolved, depth, info) {
					return false
				}
			}
			continue
		}

		if entry.IsDir() {
			if !t.dir(path, realPath, entry.Name(), depth+1) {
				return false
			}
			continue
		}
		if !mode.IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if !t.fail(path, err) {
				return false
			}
			continue
		}
		if !t.file(path, realPath, depth, info) {
			return false
		}
	}
	return true
}

func (t *traversal) dir(path, realPath, name string, depth int) bool {
	if _, skip := t.w.skip[name]; skip {
		return true
	}
	if !t.allowDepth(depth) {
		return true
	}
	if _, seen := t.visited[realPath]; seen {
		t.skipped(path, ErrAlreadyVisited)
		return true
	}
	t.visited[realPath] = struct{}{}
	entries, err := os.ReadDir(path)
	if err != nil {
		return t.fail(path, err)
	}
	t.obs.DirectoryVisited(path, depth)
	return t.entries(path, realPath, depth, entries)
}

func (t *traversal) file(path, realPath string, depth int, info fs.FileInfo) bool {
	if _, seen := t.visited[realPath]; seen {
		t.skipped(path, ErrAlreadyEmitted)
		return true
	}
	t.visited[realPath] = struct{}{}
	rel, err := filepath.Rel(t.root, path)
	if err != nil {
		rel = path
	}
	// Symlinked files keep the link name.
	name := filepath.Base(path)
	ref := scan.FileRef{
		Path:    path,
		RelPath: rel,
		Name:    name,
		Ext:     strings.ToLower(filepath.Ext(name)),
		Size:    info.Size(),
		Depth:   depth,
		ModTime: info.ModTime(),
	}
	return t.yield(ref, nil)
}

func (t *traversal) inside(resolved string) bool {
	if resolved == t.realRoot {
		return true
	}
	rel, err := filepath.Rel(t.realRoot, resolved)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// fail skips path unless err shows the scan root itself is gone, in which case
// it yields ErrRootGone and reports false.
func (t *traversal) fail(path string, err error) bool {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENODEV) || errors.Is(err, syscall.EIO) {
		if rerr := CheckRoot(t.root); rerr != nil {
			t.w.logger.Warn("scan root lost", zap.String("path", path), zap.Error(rerr))
			t.yield(scan.FileRef{}, fmt.Errorf("%w: %w", ErrRootGone, rerr))
			return false
		}
	}
	t.skipped(path, err)
	return true
}

func (t *traversal) skipped(path string, err error) {
	t.w.logger.Debug("entry skipped", zap.String("path", path), zap.Error(err))
	t.obs.EntrySkipped(path, err)
}

type nopObserver struct{}

func (nopObserver) DirectoryVisited(string, int) {}
func (nopObserver) EntrySkipped(string, error)   {}
