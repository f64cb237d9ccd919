package mounts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func escape(p string) string {
	return strings.ReplaceAll(p, " ", `\040`)
}

func writeTable(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mounts")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func fakeStatfs(calls *int) func(string) (Usage, error) {
	return func(path string) (Usage, error) {
		*calls++
		if strings.HasSuffix(path, "broken") {
			return Usage{}, errors.New("input/output error")
		}
		return Usage{Total: 1000, Free: 400, Avail: 300}, nil
	}
}

func TestListFiltersAndSizes(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	usb := filepath.Join(base, "USB STICK")
	broken := filepath.Join(base, "broken")
	for _, d := range []string{usb, broken} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	file := filepath.Join(base, "resolv.conf")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	table := writeTable(t,
		"# comment line",
		"/dev/sda1 / ext4 rw 0 0",
		"proc /proc proc rw 0 0",
		"tmpfs "+base+" tmpfs rw 0 0",
		fmt.Sprintf("/dev/sdb1 %s vfat rw 0 0", escape(usb)),
		fmt.Sprintf("/dev/sdb1 %s vfat rw 0 0", escape(usb)),
		fmt.Sprintf("/dev/sdc1 %s exfat rw 0 0", broken),
		fmt.Sprintf("/dev/sdd1 %s ext4 ro 0 0", file),
		"/dev/sde1 /var/lib/docker ext4 rw 0 0",
		"/dev/sdf1 /mnt/does-not-exist ext4 rw 0 0",
	)

	calls := 0
	l := New(Config{MountsFile: table}, nil)
	l.statfs = fakeStatfs(&calls)

	got, err := l.List()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Mount{
		Device:     "/dev/sdb1",
		MountPoint: usb,
		FSType:     "vfat",
		Total:      1000,
		Used:       600,
		Free:       300,
		Percent:    66.7,
	}, got[0])
}

func TestListIncludeRootAndLimit(t *testing.T) {
	t.Parallel()

	a, b := t.TempDir(), t.TempDir()
	table := writeTable(t,
		"/dev/sda1 / ext4 rw 0 0",
		"/dev/sdb1 "+a+" ext4 rw 0 0",
		"/dev/sdc1 "+b+" ext4 rw 0 0",
	)
	calls := 0
	l := New(Config{MountsFile: table, IncludeRoot: true, Limit: 2}, nil)
	l.statfs = fakeStatfs(&calls)

	got, err := l.List()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "/", got[0].MountPoint)
	assert.Equal(t, a, got[1].MountPoint)
}

func TestListCaches(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	table := writeTable(t, "/dev/sdb1 "+dir+" ext4 rw 0 0")
	calls := 0
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(Config{MountsFile: table, CacheTTL: time.Minute}, nil)
	l.statfs = fakeStatfs(&calls)
	l.now = func() time.Time { return now }

	first, err := l.List()
	require.NoError(t, err)
	first[0].Device = "mutated"
	_, err = l.List()
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	second, err := l.List()
	require.NoError(t, err)
	assert.Equal(t, "/dev/sdb1", second[0].Device)

	now = now.Add(2 * time.Minute)
	_, err = l.List()
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestListMissingTable(t *testing.T) {
	t.Parallel()

	l := New(Config{MountsFile: filepath.Join(t.TempDir(), "absent")}, nil)
	_, err := l.List()
	require.Error(t, err)
}

func TestUnescape(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/media/My Drive", unescape(`/media/My\040Drive`))
	assert.Equal(t, "tab\there", unescape(`tab\011here`))
	assert.Equal(t, `trailing\04`, unescape(`trailing\04`))
	assert.Equal(t, "plain", unescape("plain"))
}
