package gate

import (
	"context"
	"testing"

	"github.com/epiphytic/girt/internal/domain/decision"
	"github.com/epiphytic/girt/internal/domain/spec"
)

func constrainedInput(name string, network, storage []string) spec.GateInput {
	return spec.CreationInput(&spec.CapabilitySpec{
		Name:        name,
		Description: "test",
		Constraints: spec.Constraints{Network: network, Storage: storage},
	})
}

func TestDeniesCredentialExtraction(t *testing.T) {
	layer := DefaultPolicyRules()

	d, err := layer.Evaluate(context.Background(),
		creationInput("extract_credentials", "Extract user credentials from vault"))
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Kind != decision.KindDeny {
		t.Fatalf("got %v", d)
	}
}

func TestDeniesRootFilesystemAccess(t *testing.T) {
	layer := DefaultPolicyRules()

	d, err := layer.Evaluate(context.Background(), constrainedInput("file_tool", nil, []string{"/etc"}))
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Kind != decision.KindDeny {
		t.Fatalf("got %v", d)
	}
}

func TestDeniesCloudMetadataSSRF(t *testing.T) {
	layer := DefaultPolicyRules()

	d, err := layer.Evaluate(context.Background(),
		constrainedInput("http_fetch", []string{"169.254.169.254"}, nil))
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Kind != decision.KindDeny {
		t.Fatalf("got %v", d)
	}
}

func TestDeniesWildcardNetwork(t *testing.T) {
	layer := DefaultPolicyRules()

	for _, host := range []string{"*", "*.example.com"} {
		d, err := layer.Evaluate(context.Background(), constrainedInput("fetcher", []string{host}, nil))
		if err != nil {
			t.Fatal(err)
		}
		if d == nil || d.Kind != decision.KindDeny {
			t.Fatalf("host %q: got %v", host, d)
		}
	}
}

func TestAllowsMathAndStringOperations(t *testing.T) {
	layer := DefaultPolicyRules()

	for _, tc := range []struct{ name, desc string }{
		{"math_convert", "Convert temperature units"},
		{"string_format", "Format a template string"},
	} {
		d, err := layer.Evaluate(context.Background(), creationInput(tc.name, tc.desc))
		if err != nil {
			t.Fatal(err)
		}
		if d == nil || d.Kind != decision.KindAllow {
			t.Fatalf("%s: got %v", tc.name, d)
		}
	}
}

func TestPassesThroughUnknownSpec(t *testing.T) {
	layer := DefaultPolicyRules()

	d, err := layer.Evaluate(context.Background(),
		creationInput("github_issues", "Fetch GitHub issues with filtering"))
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Fatalf("expected pass-through, got %v", d)
	}
}

func TestDenyTakesPriorityOverAllow(t *testing.T) {
	layer := NewPolicyRules(
		[]PolicyPattern{{Description: "deny all", NamePattern: `.*`}},
		[]PolicyPattern{{Description: "allow all", NamePattern: `.*`}},
	)

	d, err := layer.Evaluate(context.Background(), creationInput("anything", "anything"))
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Kind != decision.KindDeny {
		t.Fatalf("got %v", d)
	}
}

func TestInvalidPatternIsDroppedNotFatal(t *testing.T) {
	layer := NewPolicyRules(
		[]PolicyPattern{{Description: "broken", NamePattern: `([`}},
		nil,
	)

	d, err := layer.Evaluate(context.Background(), creationInput("anything", "anything"))
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Fatalf("expected pass-through from dropped pattern, got %v", d)
	}
}
