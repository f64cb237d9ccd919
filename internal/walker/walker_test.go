package walker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sawdisk/internal/scan"
)

type recordingObserver struct {
	dirs    []string
	skipped map[string]error
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{skipped: make(map[string]error)}
}

func (o *recordingObserver) DirectoryVisited(path string, _ int) {
	o.dirs = append(o.dirs, path)
}

func (o *recordingObserver) EntrySkipped(path string, err error) {
	o.skipped[path] = err
}

func writeFile(t *testing.T, path string, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func collect(t *testing.T, w *Walker, root string, obs Observer) []scan.FileRef {
	t.Helper()
	var refs []scan.FileRef
	for ref, err := range w.Walk(context.Background(), root, obs) {
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	return refs
}

func relPaths(refs []scan.FileRef) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		out = append(out, filepath.ToSlash(ref.RelPath))
	}
	return out
}

func TestWalkLexicalDepthFirst(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.txt"), "b")
	writeFile(t, filepath.Join(root, "a", "z.key"), "z")
	writeFile(t, filepath.Join(root, "a", "deep", "wallet.dat"), "w")
	writeFile(t, filepath.Join(root, "c", "notes.TXT"), "n")

	obs := newRecordingObserver()
	refs := collect(t, New(Options{MaxDepth: scan.Unbounded}, nil), root, obs)

	require.Equal(t, []string{"a/deep/wallet.dat", "a/z.key", "b.txt", "c/notes.TXT"}, relPaths(refs))
	require.Equal(t, ".txt", refs[3].Ext)
	require.Equal(t, 2, refs[0].Depth)
	require.Equal(t, 0, refs[2].Depth)
	require.Len(t, obs.dirs, 4)

	// Same snapshot, same order.
	again := collect(t, New(Options{MaxDepth: scan.Unbounded}, nil), root, nil)
	require.Equal(t, relPaths(refs), relPaths(again))
}

func TestWalkDepthBound(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "top.key"), "0")
	writeFile(t, filepath.Join(root, "l1", "one.key"), "1")
	writeFile(t, filepath.Join(root, "l1", "l2", "two.key"), "2")
	writeFile(t, filepath.Join(root, "l1", "l2", "l3", "three.key"), "3")

	cases := []struct {
		maxDepth int
		want     []string
	}{
		{maxDepth: 0, want: []string{"top.key"}},
		{maxDepth: 1, want: []string{"l1/one.key", "top.key"}},
		{maxDepth: 2, want: []string{"l1/l2/two.key", "l1/one.key", "top.key"}},
		{maxDepth: scan.Unbounded, want: []string{"l1/l2/l3/three.key", "l1/l2/two.key", "l1/one.key", "top.key"}},
	}
	for _, tc := range cases {
		refs := collect(t, New(Options{MaxDepth: tc.maxDepth}, nil), root, nil)
		require.Equal(t, tc.want, relPaths(refs), "max depth %d", tc.maxDepth)
		for _, ref := range refs {
			if tc.maxDepth >= 0 {
				require.LessOrEqual(t, ref.Depth, tc.maxDepth)
			}
		}
	}
}

func TestWalkSkipDirs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".Trashes", "wallet.dat"), "x")
	writeFile(t, filepath.Join(root, "keep", "wallet.dat"), "x")

	refs := collect(t, New(Options{MaxDepth: scan.Unbounded, SkipDirs: DefaultSkipDirs}, nil), root, nil)
	require.Equal(t, []string{"keep/wallet.dat"}, relPaths(refs))
}

func TestWalkSymlinks(t *testing.T) {
	t.Parallel()

	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "secret.key"), "s")

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "inner", "seed.txt"), "x")
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))
	require.NoError(t, os.Symlink(filepath.Join(root, "inner"), filepath.Join(root, "loop")))
	require.NoError(t, os.Symlink(root, filepath.Join(root, "inner", "back")))
	require.NoError(t, os.Symlink(filepath.Join(root, "inner", "seed.txt"), filepath.Join(root, "alias.txt")))

	obs := newRecordingObserver()
	refs := collect(t, New(Options{MaxDepth: scan.Unbounded}, nil), root, obs)

	// The alias sorts first and claims the file; the target is not emitted twice.
	require.Equal(t, []string{"alias.txt"}, relPaths(refs))
	require.ErrorIs(t, obs.skipped[filepath.Join(root, "inner", "seed.txt")], ErrAlreadyEmitted)
	require.ErrorIs(t, obs.skipped[filepath.Join(root, "escape")], ErrOutsideRoot)
	require.ErrorIs(t, obs.skipped[filepath.Join(root, "loop")], ErrAlreadyVisited)
	require.ErrorIs(t, obs.skipped[filepath.Join(root, "inner", "back")], ErrAlreadyVisited)
}

func TestWalkUnreadableDirectoryIsSkipped(t *testing.T) {
	t.Parallel()
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}

	root := t.TempDir()
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "wallet.dat"), "x")
	writeFile(t, filepath.Join(root, "open.key"), "x")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	obs := newRecordingObserver()
	refs := collect(t, New(Options{MaxDepth: scan.Unbounded}, nil), root, obs)
	require.Equal(t, []string{"open.key"}, relPaths(refs))
	require.Contains(t, obs.skipped, locked)
}

func TestWalkMissingRootYieldsError(t *testing.T) {
	t.Parallel()

	w := New(Options{MaxDepth: scan.Unbounded}, nil)
	var gotErr error
	for _, err := range w.Walk(context.Background(), filepath.Join(t.TempDir(), "gone"), nil) {
		gotErr = err
	}
	require.Error(t, gotErr)
}

func TestWalkRootRemovedMidWalkIsFatal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		files []string
	}{
		{name: "pending entries", files: []string{"a.key", "b/c.key", "d.key"}},
		{name: "last entry emitted", files: []string{"a.key"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			root := filepath.Join(t.TempDir(), "volume")
			for _, name := range tc.files {
				writeFile(t, filepath.Join(root, name), "x")
			}

			obs := newRecordingObserver()
			var (
				seen    int
				gotErr  error
				errored int
			)
			for _, err := range New(Options{MaxDepth: scan.Unbounded}, nil).Walk(context.Background(), root, obs) {
				if err != nil {
					gotErr = err
					errored++
					continue
				}
				seen++
				require.NoError(t, os.RemoveAll(root))
			}
			require.Equal(t, 1, seen)
			require.Equal(t, 1, errored)
			require.ErrorIs(t, gotErr, ErrRootGone)
			require.Empty(t, obs.skipped)
		})
	}
}

func TestWalkDanglingSymlinkIsSkipped(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "wallet.dat"), "x")
	require.NoError(t, os.Symlink(filepath.Join(root, "gone.key"), filepath.Join(root, "broken.key")))

	obs := newRecordingObserver()
	refs := collect(t, New(Options{MaxDepth: scan.Unbounded}, nil), root, obs)
	require.Equal(t, []string{"wallet.dat"}, relPaths(refs))
	require.Contains(t, obs.skipped, filepath.Join(root, "broken.key"))
}

func TestWalkStopsOnCancel(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, name := range []string{"a.key", "b.key", "c.key"} {
		writeFile(t, filepath.Join(root, name), "x")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var seen int
	for _, err := range New(Options{MaxDepth: scan.Unbounded}, nil).Walk(ctx, root, nil) {
		require.NoError(t, err)
		seen++
		cancel()
	}
	require.Equal(t, 1, seen)
}

func TestCheckRoot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, CheckRoot(dir))

	file := filepath.Join(dir, "f")
	writeFile(t, file, "x")
	require.ErrorIs(t, CheckRoot(file), ErrNotDirectory)
	require.Error(t, CheckRoot(filepath.Join(dir, "missing")))
}
