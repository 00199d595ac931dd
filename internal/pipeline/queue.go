package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/epiphytic/girt/internal/domain/build"
)

// Queue is the file-based capability request queue.
//
// Layout under base:
//
//	pending/      new requests waiting to be processed
//	in_progress/  requests currently being built
//	completed/    successfully built requests
//	failed/       requests that failed
//
// Requests move between directories with atomic renames, so a crash
// never leaves a request in two states.
type Queue struct {
	base string
}

// NewQueue creates a queue rooted at base.
func NewQueue(base string) *Queue {
	return &Queue{base: base}
}

func (q *Queue) dir(status build.RequestStatus) string {
	return filepath.Join(q.base, string(status))
}

// Init creates the queue directory structure.
func (q *Queue) Init() error {
	for _, status := range []build.RequestStatus{
		build.StatusPending, build.StatusInProgress, build.StatusCompleted, build.StatusFailed,
	} {
		if err := os.MkdirAll(q.dir(status), 0o755); err != nil {
			return fmt.Errorf("queue init: %w", err)
		}
	}
	return nil
}

// Enqueue writes a new request into pending.
func (q *Queue) Enqueue(req *build.CapabilityRequest) error {
	req.Status = build.StatusPending
	if err := q.write(q.dir(build.StatusPending), req); err != nil {
		return err
	}
	return nil
}

// ClaimNext atomically moves the first pending request (lexicographic
// order, for determinism) into in_progress and returns it. Returns
// ErrQueueEmpty when nothing is pending.
func (q *Queue) ClaimNext() (*build.CapabilityRequest, error) {
	entries, err := os.ReadDir(q.dir(build.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("queue read pending: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, ErrQueueEmpty
	}
	sort.Strings(names)

	src := filepath.Join(q.dir(build.StatusPending), names[0])
	content, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("queue read request: %w", err)
	}
	var req build.CapabilityRequest
	if err := json.Unmarshal(content, &req); err != nil {
		return nil, fmt.Errorf("queue decode request: %w", err)
	}

	req.Status = build.StatusInProgress
	req.Attempts++
	dst := filepath.Join(q.dir(build.StatusInProgress), names[0])
	if err := os.Rename(src, dst); err != nil {
		return nil, fmt.Errorf("queue claim: %w", err)
	}
	if err := q.write(q.dir(build.StatusInProgress), &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Complete moves an in-progress request into completed.
func (q *Queue) Complete(req *build.CapabilityRequest) error {
	return q.transition(req, build.StatusCompleted)
}

// Fail moves an in-progress request into failed.
func (q *Queue) Fail(req *build.CapabilityRequest) error {
	return q.transition(req, build.StatusFailed)
}

// Requeue moves an in-progress request back to pending for another
// attempt.
func (q *Queue) Requeue(req *build.CapabilityRequest) error {
	return q.transition(req, build.StatusPending)
}

// List returns all requests currently in the given state.
func (q *Queue) List(status build.RequestStatus) ([]build.CapabilityRequest, error) {
	entries, err := os.ReadDir(q.dir(status))
	if err != nil {
		return nil, fmt.Errorf("queue list %s: %w", status, err)
	}
	var out []build.CapabilityRequest
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(q.dir(status), e.Name()))
		if err != nil {
			return nil, fmt.Errorf("queue read %s: %w", e.Name(), err)
		}
		var req build.CapabilityRequest
		if err := json.Unmarshal(content, &req); err != nil {
			return nil, fmt.Errorf("queue decode %s: %w", e.Name(), err)
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (q *Queue) transition(req *build.CapabilityRequest, to build.RequestStatus) error {
	filename := req.ID + ".json"
	src := filepath.Join(q.dir(build.StatusInProgress), filename)
	dst := filepath.Join(q.dir(to), filename)

	req.Status = to
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("queue transition to %s: %w", to, err)
	}
	return q.write(q.dir(to), req)
}

// write persists a request JSON with temp-then-rename so readers never
// observe a partial file.
func (q *Queue) write(dir string, req *build.CapabilityRequest) error {
	content, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return fmt.Errorf("queue encode: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("queue temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("queue write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("queue close: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, req.ID+".json")); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("queue rename: %w", err)
	}
	return nil
}
