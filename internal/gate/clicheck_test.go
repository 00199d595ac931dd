package gate

import (
	"context"
	"testing"

	"github.com/epiphytic/girt/internal/domain/decision"
)

func TestDefersToJqForJSONQuery(t *testing.T) {
	layer := DefaultCliCheck()

	d, err := layer.Evaluate(context.Background(), creationInput("json_query", "Query JSON documents"))
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Kind != decision.KindDefer || d.Target.Name != "jq" {
		t.Fatalf("got %v", d)
	}
}

func TestDefersToRipgrep(t *testing.T) {
	layer := DefaultCliCheck()

	d, err := layer.Evaluate(context.Background(), creationInput("ripgrep_search", "Search files with ripgrep"))
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Kind != decision.KindDefer {
		t.Fatalf("got %v", d)
	}
}

func TestPassesThroughUnknownTool(t *testing.T) {
	layer := DefaultCliCheck()

	d, err := layer.Evaluate(context.Background(), creationInput("github_issues", "Fetch GitHub issues"))
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Fatalf("expected pass-through, got %v", d)
	}
}

func TestSkipsExecutionRequests(t *testing.T) {
	layer := DefaultCliCheck()

	d, err := layer.Evaluate(context.Background(), executionInput("jq"))
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Fatalf("expected pass-through for execution input, got %v", d)
	}
}

func TestContainsWord(t *testing.T) {
	cases := []struct {
		text, word string
		want       bool
	}{
		{"elapsed time", "sed", false},
		{"use sed for this", "sed", true},
		{"sed", "sed", true},
		{"sed.", "sed", true},
		{"parsed", "sed", false},
		{"stream_edit tool", "stream_edit", true},
		{"sediment", "sed", false},
		{"a sed", "sed", true},
		{"rg search", "rg", true},
		{"large files", "rg", false},
		{"", "sed", false},
		{"sed", "", false},
	}
	for _, tc := range cases {
		if got := containsWord(tc.text, tc.word); got != tc.want {
			t.Errorf("containsWord(%q, %q) = %v, want %v", tc.text, tc.word, got, tc.want)
		}
	}
}
