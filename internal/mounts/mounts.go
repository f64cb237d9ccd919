// Package mounts enumerates mounted volumes with their capacity so operators
// can pick a scan root. The scan engine never depends on it.
package mounts

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrUnsupported is returned on platforms without a mount table source.
var ErrUnsupported = errors.New("mount enumeration is not supported on this platform")

// Mount describes one mounted volume.
type Mount struct {
	Device     string  `json:"device"`
	MountPoint string  `json:"mountpoint"`
	FSType     string  `json:"fstype"`
	Total      uint64  `json:"total"`
	Used       uint64  `json:"used"`
	Free       uint64  `json:"free"`
	Percent    float64 `json:"percent"`
}

// Usage is the capacity of the filesystem holding a path.
type Usage struct {
	Total uint64
	Free  uint64
	Avail uint64
}

type entry struct {
	device, mountPoint, fsType string
}

var (
	skipExact = []string{"/proc", "/sys", "/dev", "/run", "/tmp", "/boot", "/boot/efi"}
	skipUnder = []string{"/proc/", "/sys/", "/dev/", "/run/", "/var/lib/", "/etc/", "/snap/"}
	// Pseudo and container plumbing filesystems never hold evidence.
	pseudoFS = map[string]bool{
		"proc": true, "sysfs": true, "devtmpfs": true, "devpts": true, "tmpfs": true,
		"cgroup": true, "cgroup2": true, "securityfs": true, "debugfs": true, "tracefs": true,
		"mqueue": true, "hugetlbfs": true, "pstore": true, "bpf": true, "configfs": true,
		"fusectl": true, "autofs": true, "binfmt_misc": true, "overlay": true, "squashfs": true,
		"nsfs": true, "rpc_pipefs": true,
	}
)

// Config controls the Lister.
type Config struct {
	// MountsFile overrides the platform mount table (default /proc/self/mounts on Linux).
	MountsFile string
	// Limit caps the number of mounts returned (default 50).
	Limit int
	// CacheTTL reuses the last listing for this long (default 30s, negative disables).
	CacheTTL time.Duration
	// IncludeRoot keeps "/" in the listing.
	IncludeRoot bool
}

// Lister reads the mount table and sizes each real volume.
type Lister struct {
	cfg    Config
	statfs func(string) (Usage, error)
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	cached  []Mount
	cacheAt time.Time
}

// New constructs a Lister.
func New(cfg Config, logger *zap.Logger) *Lister {
	if cfg.MountsFile == "" {
		cfg.MountsFile = defaultMountsFile
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lister{cfg: cfg, statfs: statfs, logger: logger.Named("mounts"), now: time.Now}
}

// List returns the mounted volumes worth scanning.
func (l *Lister) List() ([]Mount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cfg.CacheTTL > 0 && l.cached != nil && l.now().Sub(l.cacheAt) < l.cfg.CacheTTL {
		return slices.Clone(l.cached), nil
	}
	if l.cfg.MountsFile == "" {
		return nil, ErrUnsupported
	}
	f, err := os.Open(l.cfg.MountsFile)
	if err != nil {
		return nil, fmt.Errorf("open mount table: %w", err)
	}
	defer f.Close()

	entries, err := parse(f)
	if err != nil {
		return nil, err
	}
	out := make([]Mount, 0, len(entries))
	seen := make(map[string]bool)
	for _, e := range entries {
		if len(out) >= l.cfg.Limit {
			break
		}
		if seen[e.mountPoint] || !l.keep(e) {
			continue
		}
		info, err := os.Stat(e.mountPoint)
		if err != nil || !info.IsDir() {
			continue
		}
		u, err := l.statfs(e.mountPoint)
		if err != nil {
			l.logger.Debug("statfs failed", zap.String("mountpoint", e.mountPoint), zap.Error(err))
			continue
		}
		seen[e.mountPoint] = true
		out = append(out, toMount(e, u))
	}
	l.cached = out
	l.cacheAt = l.now()
	return slices.Clone(out), nil
}

func (l *Lister) keep(e entry) bool {
	if pseudoFS[e.fsType] {
		return false
	}
	if e.mountPoint == "/" {
		return l.cfg.IncludeRoot
	}
	if slices.Contains(skipExact, e.mountPoint) {
		return false
	}
	for _, p := range skipUnder {
		if strings.HasPrefix(e.mountPoint, p) {
			return false
		}
	}
	return !strings.Contains(e.mountPoint, "/oldroot")
}

func toMount(e entry, u Usage) Mount {
	used := u.Total - u.Free
	m := Mount{
		Device:     e.device,
		MountPoint: e.mountPoint,
		FSType:     e.fsType,
		Total:      u.Total,
		Used:       used,
		Free:       u.Avail,
	}
	// Same basis as df: used over the space visible to unprivileged users.
	if denom := used + u.Avail; denom > 0 {
		m.Percent = math.Round(float64(used)/float64(denom)*1000) / 10
	}
	return m
}

// parse reads fstab-format lines: device mountpoint fstype options ...
func parse(r io.Reader) ([]entry, error) {
	var out []entry
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		out = append(out, entry{
			device:     unescape(fields[0]),
			mountPoint: unescape(fields[1]),
			fsType:     fields[2],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read mount table: %w", err)
	}
	return out, nil
}

// unescape decodes the octal escapes (\040 for space) the kernel uses.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
