package gate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/epiphytic/girt/internal/domain/decision"
	"github.com/epiphytic/girt/internal/domain/spec"
)

// CliUtility is a well-known native utility the cli-check layer can defer
// to instead of building a new tool.
type CliUtility struct {
	Name        string
	Description string
	// Keywords trigger a match when they appear as whole words in the
	// spec's lowercased name or description.
	Keywords []string
}

// CliCheck defers tool creation to a native CLI utility when one already
// covers the requested capability. Applies to creation inputs only.
type CliCheck struct {
	utilities []CliUtility
}

// NewCliCheck creates the layer with an explicit utility list.
func NewCliCheck(utilities []CliUtility) *CliCheck {
	return &CliCheck{utilities: utilities}
}

// DefaultCliCheck returns the layer with the built-in utility table.
func DefaultCliCheck() *CliCheck {
	return NewCliCheck(defaultUtilities())
}

func (c *CliCheck) Name() decision.Layer { return decision.LayerCliCheck }

func (c *CliCheck) Evaluate(_ context.Context, input spec.GateInput) (*decision.Decision, error) {
	s := input.Creation
	if s == nil {
		return nil, nil
	}

	name := strings.ToLower(s.Name)
	desc := strings.ToLower(s.Description)

	for _, util := range c.utilities {
		for _, kw := range util.Keywords {
			kw = strings.ToLower(kw)
			if containsWord(name, kw) || containsWord(desc, kw) {
				slog.Info("cli utility match: defer", "utility", util.Name, "keyword", kw)
				d := decision.Defer(decision.DeferTarget{
					Kind:        decision.TargetCliUtility,
					Name:        util.Name,
					Description: util.Description,
				})
				return &d, nil
			}
		}
	}
	return nil, nil
}

// containsWord reports whether word occurs in text bounded by
// non-alphanumeric, non-underscore characters or the string endpoints.
// "elapsed" must not match the keyword "sed".
func containsWord(text, word string) bool {
	if word == "" {
		return false
	}
	for from := 0; ; {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(word)
		if (start == 0 || !wordByte(text[start-1])) && (end == len(text) || !wordByte(text[end])) {
			return true
		}
		from = start + 1
	}
}

func wordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

func defaultUtilities() []CliUtility {
	return []CliUtility{
		{
			Name:        "jq",
			Description: "Command-line JSON processor",
			Keywords:    []string{"jq", "json_query", "json_filter"},
		},
		{
			Name:        "curl",
			Description: "Transfer data with URLs",
			Keywords:    []string{"curl"},
		},
		{
			Name:        "ripgrep",
			Description: "Recursively search directories for a regex pattern",
			Keywords:    []string{"ripgrep", "rg"},
		},
		{
			Name:        "sed",
			Description: "Stream editor for filtering and transforming text",
			Keywords:    []string{"sed", "stream_edit"},
		},
		{
			Name:        "awk",
			Description: "Pattern scanning and processing language",
			Keywords:    []string{"awk"},
		},
		{
			Name:        "git",
			Description: "Distributed version control system",
			Keywords:    []string{"git_clone", "git_commit", "git_push"},
		},
	}
}
