package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/epiphytic/girt/internal/domain/build"
	"github.com/epiphytic/girt/internal/domain/spec"
	"github.com/epiphytic/girt/internal/port/llm"
)

func refinedWith(mutate func(*build.RefinedSpec)) *build.RefinedSpec {
	r := &build.RefinedSpec{
		Action: build.ActionBuild,
		Spec: spec.CapabilitySpec{
			Name:        "simple_tool",
			Description: "Transforms a value",
		},
	}
	if mutate != nil {
		mutate(r)
	}
	return r
}

func TestNeedsPlanTriggers(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*build.RefinedSpec)
		want   bool
	}{
		{"no triggers", nil, false},
		{"complexity hint high", func(r *build.RefinedSpec) {
			r.ComplexityHint = build.ComplexityHigh
		}, true},
		{"network constraint", func(r *build.RefinedSpec) {
			r.Spec.Constraints.Network = []string{"discord.com"}
		}, true},
		{"secret constraint", func(r *build.RefinedSpec) {
			r.Spec.Constraints.Secrets = []string{"DISCORD_BOT_TOKEN"}
		}, true},
		{"polling description", func(r *build.RefinedSpec) {
			r.Spec.Description = "Polls a channel until a reaction arrives"
		}, true},
		{"wait description", func(r *build.RefinedSpec) {
			r.Spec.Description = "Waits for a response"
		}, true},
		{"timeout description case-insensitive", func(r *build.RefinedSpec) {
			r.Spec.Description = "Honors a TIMEOUT budget"
		}, true},
		{"two string inputs", func(r *build.RefinedSpec) {
			r.Spec.Inputs = json.RawMessage(`{"channel_id": "string", "question": "string", "count": "u32"}`)
		}, true},
		{"one string input", func(r *build.RefinedSpec) {
			r.Spec.Inputs = json.RawMessage(`{"question": "string", "count": "u32"}`)
		}, false},
		{"schema-shaped string inputs", func(r *build.RefinedSpec) {
			r.Spec.Inputs = json.RawMessage(`{"properties": {"a": {"type": "string"}, "b": {"type": "string"}}}`)
		}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NeedsPlan(refinedWith(tc.mutate)); got != tc.want {
				t.Errorf("NeedsPlan = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPlannerParsesPlan(t *testing.T) {
	resp := `{
		"validation_layer": "Validate channel_id is all digits, 1-20 chars. Cap timeout_secs at 3600.",
		"security_notes": "channel_id: must not contain slashes. bot_token: strip CRLF before header use.",
		"api_sequence": "1. POST /channels/{channel_id}/messages. 2. Poll reactions.",
		"edge_cases": "Timeout expires: return approved=false.",
		"implementation_guidance": "Sleep in a loop with min(10s, remaining)."
	}`
	planner := NewPlanner(llm.Constant(resp))

	plan, _, err := planner.Plan(context.Background(), refinedWith(nil))
	if err != nil {
		t.Fatal(err)
	}
	if plan.ValidationLayer == "" || plan.SecurityNotes == "" || plan.APISequence == "" {
		t.Fatalf("plan = %+v", plan)
	}
}

func TestPlannerParsesFencedPlan(t *testing.T) {
	resp := "Here is the plan:\n```json\n{\"validation_layer\":\"validate inputs\",\"security_notes\":\"check injection\",\"api_sequence\":\"call api\",\"edge_cases\":\"handle timeout\",\"implementation_guidance\":\"buffer responses\"}\n```"
	planner := NewPlanner(llm.Constant(resp))

	plan, _, err := planner.Plan(context.Background(), refinedWith(nil))
	if err != nil {
		t.Fatal(err)
	}
	if plan.ValidationLayer != "validate inputs" {
		t.Errorf("validation layer = %q", plan.ValidationLayer)
	}
}

func TestPlannerRejectsProse(t *testing.T) {
	planner := NewPlanner(llm.Constant("I cannot produce a plan for this spec."))

	if _, _, err := planner.Plan(context.Background(), refinedWith(nil)); err == nil {
		t.Fatal("expected parse error")
	}
}
