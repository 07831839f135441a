package artifacts

import (
	"context"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// Sink publishes a complete set of encoded artifacts for a run.
// Implementations must not be handed partially encoded sets.
type Sink interface {
	Publish(ctx context.Context, runID string, arts []Artifact) ([]Location, error)
	Describe() string
}

// FS publishes into a directory. Each artifact is staged as a temp file in
// the target directory and renamed into place once every artifact has been
// staged. Replaced outputs are kept aside until the last rename succeeds and
// are restored if any rename fails.
type FS struct {
	dir    string
	rename func(oldpath, newpath string) error
}

// NewFS returns a filesystem sink rooted at dir, creating it if needed
func NewFS(dir string) (*FS, error) {
	if dir == "" {
		return nil, &Error{Artifact: "(sink)", Message: "output directory is required"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &Error{Artifact: "(sink)", Message: "create output directory", Cause: err}
	}
	return &FS{dir: dir, rename: os.Rename}, nil
}

// Describe returns the output directory
func (f *FS) Describe() string { return "file://" + f.dir }

// Publish stages and renames every artifact
func (f *FS) Publish(ctx context.Context, runID string, arts []Artifact) ([]Location, error) {
	if err := checkNames(arts); err != nil {
		return nil, err
	}

	// 1. Stage all artifacts
	staged := make([]string, 0, len(arts))
	cleanup := func() {
		for _, p := range staged {
			_ = os.Remove(p)
		}
	}
	for _, a := range arts {
		if err := ctx.Err(); err != nil {
			cleanup()
			return nil, err
		}
		tmp, err := os.CreateTemp(f.dir, ".tmp-"+a.Name+"-*")
		if err != nil {
			cleanup()
			return nil, &Error{Artifact: a.Name, Message: "stage", Cause: err}
		}
		staged = append(staged, tmp.Name())
		if _, err := tmp.Write(a.Data); err != nil {
			_ = tmp.Close()
			cleanup()
			return nil, &Error{Artifact: a.Name, Message: "stage", Cause: err}
		}
		if err := tmp.Sync(); err != nil {
			_ = tmp.Close()
			cleanup()
			return nil, &Error{Artifact: a.Name, Message: "sync", Cause: err}
		}
		if err := tmp.Close(); err != nil {
			cleanup()
			return nil, &Error{Artifact: a.Name, Message: "close", Cause: err}
		}
	}

	// 2. Move into place, setting replaced files aside
	type swap struct{ target, backup string }
	var done []swap
	rollback := func() {
		for i := len(done) - 1; i >= 0; i-- {
			if done[i].backup == "" {
				_ = os.Remove(done[i].target)
				continue
			}
			_ = f.rename(done[i].backup, done[i].target)
		}
		cleanup()
	}
	locs := make([]Location, 0, len(arts))
	for i, a := range arts {
		target := filepath.Join(f.dir, a.Name)
		backup := ""
		if _, err := os.Lstat(target); err == nil {
			backup = staged[i] + ".prev"
			if err := f.rename(target, backup); err != nil {
				rollback()
				return nil, &Error{Artifact: a.Name, Message: "set aside previous output", Cause: err}
			}
		}
		if err := f.rename(staged[i], target); err != nil {
			if backup != "" {
				_ = f.rename(backup, target)
			}
			rollback()
			return nil, &Error{Artifact: a.Name, Message: "rename", Cause: err}
		}
		done = append(done, swap{target: target, backup: backup})
		locs = append(locs, locationOf(a, "file://"+target))
	}

	// 3. Drop the replaced outputs
	for _, s := range done {
		if s.backup != "" {
			_ = os.Remove(s.backup)
		}
	}
	return locs, nil
}

// Memory keeps published artifacts in memory, keyed by run id then name
type Memory struct {
	mu   sync.RWMutex
	runs map[string]map[string]Artifact
}

// NewMemory returns an empty in-memory sink
func NewMemory() *Memory {
	return &Memory{runs: map[string]map[string]Artifact{}}
}

// Describe identifies the sink
func (m *Memory) Describe() string { return "memory://" }

// Publish stores copies of the artifacts
func (m *Memory) Publish(ctx context.Context, runID string, arts []Artifact) ([]Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkNames(arts); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	set := map[string]Artifact{}
	locs := make([]Location, 0, len(arts))
	for _, a := range arts {
		a.Data = slices.Clone(a.Data)
		set[a.Name] = a
		locs = append(locs, locationOf(a, "memory://"+joinKey(runID, a.Name)))
	}
	m.runs[runID] = set
	return locs, nil
}

// Get returns a published artifact
func (m *Memory) Get(runID, name string) (Artifact, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.runs[runID][name]
	return a, ok
}

// Runs returns the run ids published so far, sorted
func (m *Memory) Runs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.runs))
}
