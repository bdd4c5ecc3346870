package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"quote-service/internal/common/clock"
)

const defaultStorageDir = "generated-pdfs"

// DiskStorage keeps generated quote PDFs in a single flat directory.
type DiskStorage struct {
	dir   string
	clock clock.Clock

	mu   sync.Mutex
	last int64
}

func NewDiskStorage(dir string, clk clock.Clock) *DiskStorage {
	if dir == "" {
		dir = defaultStorageDir
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &DiskStorage{dir: dir, clock: clk}
}

func (s *DiskStorage) Dir() string { return s.dir }

// EnsureDir creates the storage directory if it does not exist.
func (s *DiskStorage) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create storage dir %s: %w", s.dir, err)
	}
	return nil
}

// NextName returns devis-<unix ms>.pdf, bumping the millisecond value when it
// would collide with a previous name or an existing file.
func (s *DiskStorage) NextName() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := s.clock.Now().UnixMilli()
	if ms <= s.last {
		ms = s.last + 1
	}
	for {
		name := fmt.Sprintf("devis-%d.pdf", ms)
		if _, err := os.Stat(filepath.Join(s.dir, name)); os.IsNotExist(err) {
			s.last = ms
			return name
		}
		ms++
	}
}

// Save writes data under name and returns the full path.
func (s *DiskStorage) Save(name string, data []byte) (string, error) {
	path, ok := s.Path(name)
	if !ok {
		return "", fmt.Errorf("invalid document name %q", name)
	}
	if err := s.EnsureDir(); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// Path resolves name inside the storage directory. Only bare file names are
// accepted so a request can never escape the directory.
func (s *DiskStorage) Path(name string) (string, bool) {
	if !IsBareName(name) {
		return "", false
	}
	return filepath.Join(s.dir, name), true
}

// Exists reports whether name is a regular file in the storage directory.
func (s *DiskStorage) Exists(name string) bool {
	path, ok := s.Path(name)
	if !ok {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Writable probes the directory with a temporary file.
func (s *DiskStorage) Writable() error {
	if err := s.EnsureDir(); err != nil {
		return err
	}
	probe := filepath.Join(s.dir, fmt.Sprintf(".probe-%d", time.Now().UnixNano()))
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("storage dir not writable: %w", err)
	}
	return os.Remove(probe)
}

// IsBareName reports whether name is a plain file name with no path components.
func IsBareName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return filepath.Base(name) == name
}
