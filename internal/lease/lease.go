package lease

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

var (
	// ErrNoLease is returned by Read when no usable record exists.
	ErrNoLease = errors.New("no lease recorded")
	// ErrHeld is returned by Claim when another live leader holds the lease.
	ErrHeld = errors.New("lease held by another leader")
)

// lockRetry is how often a blocked claimer retries the advisory lock.
const lockRetry = 10 * time.Millisecond

// Lease identifies the leader process and its network endpoint.
type Lease struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	Instance  string    `json:"instance"`
	StartedAt time.Time `json:"started"`
}

// DefaultPath returns the lease location for the running OS.
func DefaultPath() string {
	return defaultPath(runtime.GOOS, os.Getenv("LOCALAPPDATA"))
}

func defaultPath(goos, localAppData string) string {
	if goos == "windows" {
		base := localAppData
		if base == "" {
			base = os.TempDir()
		}
		return filepath.Join(base, "nudge", "server.pid")
	}
	return "/tmp/nudge/server.pid"
}

// File is a lease record on disk.
type File struct {
	path string
	mu   sync.Mutex // flock treats a handle that already holds the lock as acquired
	lock *flock.Flock
}

// NewFile returns a File at path. Nothing is created until EnsureDir or
// Claim runs.
func NewFile(path string) *File {
	return &File{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the location of the record.
func (f *File) Path() string { return f.path }

// EnsureDir creates the directory holding the record.
func (f *File) EnsureDir() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create lease dir: %w", err)
	}
	return nil
}

// Read returns the current record. A missing, empty or unparseable record
// is reported as ErrNoLease.
func (f *File) Read() (Lease, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Lease{}, ErrNoLease
	}
	if err != nil {
		return Lease{}, fmt.Errorf("read lease: %w", err)
	}
	var l Lease
	if err := json.Unmarshal(data, &l); err != nil || l.Port <= 0 {
		return Lease{}, ErrNoLease
	}
	return l, nil
}

// Claim records self as leader unless the current record belongs to another
// instance that valid accepts, in which case it returns that record and
// ErrHeld. Claiming a record that already names self writes nothing.
//
// valid runs while the advisory lock is held, so other claimers wait for it.
func (f *File) Claim(ctx context.Context, self Lease, valid func(Lease) bool) (Lease, error) {
	if err := f.EnsureDir(); err != nil {
		return Lease{}, err
	}
	unlock, err := f.acquire(ctx)
	if err != nil {
		return Lease{}, err
	}
	defer unlock()

	cur, err := f.Read()
	switch {
	case err == nil && cur.Instance == self.Instance:
		return cur, nil
	case err == nil && valid != nil && valid(cur):
		return cur, ErrHeld
	case err != nil && !errors.Is(err, ErrNoLease):
		return Lease{}, err
	}

	if err := f.write(self); err != nil {
		return Lease{}, err
	}
	return self, nil
}

// Release removes the record if it still names instance. It reports whether
// a record was removed.
func (f *File) Release(ctx context.Context, instance string) (bool, error) {
	unlock, err := f.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	cur, err := f.Read()
	if errors.Is(err, ErrNoLease) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if cur.Instance != instance {
		return false, nil
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("remove lease: %w", err)
	}
	return true, nil
}

// Remove deletes the record regardless of owner.
func (f *File) Remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lease: %w", err)
	}
	return nil
}

func (f *File) acquire(ctx context.Context) (func(), error) {
	if err := f.EnsureDir(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	ok, err := f.lock.TryLockContext(ctx, lockRetry)
	if err != nil || !ok {
		f.mu.Unlock()
		if err == nil {
			err = fmt.Errorf("%s busy", f.lock.Path())
		}
		return nil, fmt.Errorf("lock lease: %w", err)
	}
	return func() {
		_ = f.lock.Unlock()
		f.mu.Unlock()
	}, nil
}

// write replaces the record atomically.
func (f *File) write(l Lease) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode lease: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("write lease: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write lease: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("write lease: %w", err)
	}
	if err := os.Rename(name, f.path); err != nil {
		os.Remove(name)
		return fmt.Errorf("write lease: %w", err)
	}
	return nil
}
