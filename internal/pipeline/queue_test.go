package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/epiphytic/girt/internal/domain/build"
	"github.com/epiphytic/girt/internal/domain/spec"
)

func newQueue(t *testing.T) *Queue {
	t.Helper()
	q := NewQueue(filepath.Join(t.TempDir(), "queue"))
	if err := q.Init(); err != nil {
		t.Fatal(err)
	}
	return q
}

func enqueue(t *testing.T, q *Queue, name string) build.CapabilityRequest {
	t.Helper()
	req := build.NewCapabilityRequest(spec.CapabilitySpec{Name: name, Description: "d"}, build.SourceOperator)
	if err := q.Enqueue(&req); err != nil {
		t.Fatal(err)
	}
	return req
}

func TestClaimNextEmptyQueue(t *testing.T) {
	q := newQueue(t)
	if _, err := q.ClaimNext(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("err = %v", err)
	}
}

func TestEnqueueClaimComplete(t *testing.T) {
	q := newQueue(t)
	enqueued := enqueue(t, q, "tool_one")

	claimed, err := q.ClaimNext()
	if err != nil {
		t.Fatal(err)
	}
	if claimed.ID != enqueued.ID {
		t.Errorf("claimed %s, want %s", claimed.ID, enqueued.ID)
	}
	if claimed.Status != build.StatusInProgress {
		t.Errorf("status = %s", claimed.Status)
	}
	if claimed.Attempts != 1 {
		t.Errorf("attempts = %d", claimed.Attempts)
	}

	// The file moved out of pending.
	if _, err := os.Stat(filepath.Join(q.dir(build.StatusPending), claimed.ID+".json")); !os.IsNotExist(err) {
		t.Error("request still in pending")
	}

	if err := q.Complete(claimed); err != nil {
		t.Fatal(err)
	}
	completed, err := q.List(build.StatusCompleted)
	if err != nil {
		t.Fatal(err)
	}
	if len(completed) != 1 || completed[0].Status != build.StatusCompleted {
		t.Errorf("completed = %+v", completed)
	}
}

func TestFailMovesToFailed(t *testing.T) {
	q := newQueue(t)
	enqueue(t, q, "tool_two")

	claimed, err := q.ClaimNext()
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Fail(claimed); err != nil {
		t.Fatal(err)
	}

	failed, err := q.List(build.StatusFailed)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].Status != build.StatusFailed {
		t.Errorf("failed = %+v", failed)
	}
}

func TestRequeueIncrementsAttempts(t *testing.T) {
	q := newQueue(t)
	enqueue(t, q, "tool_three")

	claimed, err := q.ClaimNext()
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Requeue(claimed); err != nil {
		t.Fatal(err)
	}

	again, err := q.ClaimNext()
	if err != nil {
		t.Fatal(err)
	}
	if again.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", again.Attempts)
	}
}

func TestClaimOrderIsDeterministic(t *testing.T) {
	q := newQueue(t)
	a := enqueue(t, q, "tool_a")
	b := enqueue(t, q, "tool_b")

	first, err := q.ClaimNext()
	if err != nil {
		t.Fatal(err)
	}
	second, err := q.ClaimNext()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{a.ID, b.ID}
	if a.ID > b.ID {
		want = []string{b.ID, a.ID}
	}
	if first.ID != want[0] || second.ID != want[1] {
		t.Errorf("claim order = %s, %s; want %v", first.ID, second.ID, want)
	}
}
