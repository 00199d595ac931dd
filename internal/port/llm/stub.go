package llm

import (
	"context"
	"sync/atomic"
)

// Stub is a deterministic Client for tests and the bootstrap provider.
// It cycles through a scripted list of responses.
type Stub struct {
	responses []string
	calls     atomic.Int64
}

// NewStub creates a stub that replays the given responses in order,
// cycling when exhausted.
func NewStub(responses ...string) *Stub {
	return &Stub{responses: responses}
}

// Constant creates a stub that always returns the same response.
func Constant(response string) *Stub {
	return NewStub(response)
}

// Chat returns the next scripted response. It never fails.
func (s *Stub) Chat(_ context.Context, _ Request) (*Response, error) {
	idx := s.calls.Add(1) - 1
	if len(s.responses) == 0 {
		return &Response{Content: "stub response"}, nil
	}
	return &Response{Content: s.responses[int(idx)%len(s.responses)]}, nil
}

// Calls reports how many requests the stub has served.
func (s *Stub) Calls() int {
	return int(s.calls.Load())
}
