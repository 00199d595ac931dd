package gate

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/epiphytic/girt/internal/domain/decision"
	"github.com/epiphytic/girt/internal/domain/spec"
)

// PolicyPattern is one policy rule: a description plus optional regex
// matchers against the spec's name, description, and constraint lists.
type PolicyPattern struct {
	Description        string   `yaml:"description"`
	NamePattern        string   `yaml:"name_pattern,omitempty"`
	DescriptionPattern string   `yaml:"description_pattern,omitempty"`
	NetworkDeny        []string `yaml:"network_deny,omitempty"`
	StorageDeny        []string `yaml:"storage_deny,omitempty"`
}

type compiledPattern struct {
	description string
	name        *regexp.Regexp
	desc        *regexp.Regexp
	network     []*regexp.Regexp
	storage     []*regexp.Regexp
}

// PolicyRules is the first cascade layer: ordered deny patterns, then
// ordered allow patterns. The first deny match denies, the first allow
// match allows, and no match passes through.
type PolicyRules struct {
	deny  []compiledPattern
	allow []compiledPattern
}

// NewPolicyRules compiles the given pattern lists. Patterns that fail to
// compile are dropped with a warning rather than disabling the layer.
func NewPolicyRules(deny, allow []PolicyPattern) *PolicyRules {
	return &PolicyRules{
		deny:  compilePatterns(deny),
		allow: compilePatterns(allow),
	}
}

// DefaultPolicyRules returns the layer with the built-in deny and allow
// pattern sets.
func DefaultPolicyRules() *PolicyRules {
	return NewPolicyRules(defaultDenyPatterns(), defaultAllowPatterns())
}

func (p *PolicyRules) Name() decision.Layer { return decision.LayerPolicyRules }

func (p *PolicyRules) Evaluate(_ context.Context, input spec.GateInput) (*decision.Decision, error) {
	// Deny patterns take priority over allow patterns.
	for i := range p.deny {
		if matchPattern(&p.deny[i], input) {
			slog.Info("policy rule matched: deny", "pattern", p.deny[i].description)
			d := decision.Deny("Policy rule: " + p.deny[i].description)
			return &d, nil
		}
	}
	for i := range p.allow {
		if matchPattern(&p.allow[i], input) {
			slog.Info("policy rule matched: allow", "pattern", p.allow[i].description)
			d := decision.Allow()
			return &d, nil
		}
	}
	return nil, nil
}

func compilePatterns(patterns []PolicyPattern) []compiledPattern {
	out := make([]compiledPattern, 0, len(patterns))
	for _, pat := range patterns {
		cp := compiledPattern{description: pat.Description}
		ok := true
		compile := func(expr string) *regexp.Regexp {
			if expr == "" {
				return nil
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				slog.Warn("policy pattern failed to compile, dropping",
					"pattern", pat.Description, "expr", expr, "error", err)
				ok = false
				return nil
			}
			return re
		}
		cp.name = compile(pat.NamePattern)
		cp.desc = compile(pat.DescriptionPattern)
		for _, expr := range pat.NetworkDeny {
			if re := compile(expr); re != nil {
				cp.network = append(cp.network, re)
			}
		}
		for _, expr := range pat.StorageDeny {
			if re := compile(expr); re != nil {
				cp.storage = append(cp.storage, re)
			}
		}
		if ok {
			out = append(out, cp)
		}
	}
	return out
}

func matchPattern(cp *compiledPattern, input spec.GateInput) bool {
	if s := input.Creation; s != nil {
		if cp.name != nil && cp.name.MatchString(s.Name) {
			return true
		}
		if cp.desc != nil && cp.desc.MatchString(s.Description) {
			return true
		}
		for _, re := range cp.network {
			for _, host := range s.Constraints.Network {
				if re.MatchString(host) {
					return true
				}
			}
		}
		for _, re := range cp.storage {
			for _, path := range s.Constraints.Storage {
				if re.MatchString(path) {
					return true
				}
			}
		}
		return false
	}
	if r := input.Execution; r != nil {
		// Execution requests carry only a tool name; match against it.
		return cp.name != nil && cp.name.MatchString(r.ToolName)
	}
	return false
}

// defaultDenyPatterns are the known-dangerous requests auto-denied before
// any other layer runs.
func defaultDenyPatterns() []PolicyPattern {
	return []PolicyPattern{
		{
			Description:        "Shell execution access",
			NamePattern:        `(?i)(shell_exec|run_command|system_call|exec_cmd)`,
			DescriptionPattern: `(?i)(execute.*shell|run.*command|system.*exec|spawn.*process)`,
		},
		{
			Description:        "Credential extraction",
			NamePattern:        `(?i)(steal|extract|dump|harvest).*(cred|secret|token|key|password)`,
			DescriptionPattern: `(?i)(steal|extract|dump|harvest).*(cred|secret|token|key|password)`,
		},
		{
			Description:        "Filesystem root access",
			DescriptionPattern: `(?i)(read|write|access).*/etc/(shadow|passwd)`,
			StorageDeny:        []string{`^/$`, `^/etc`, `^/root`, `^/proc`, `^/sys`},
		},
		{
			Description: "Cloud metadata SSRF",
			NetworkDeny: []string{`169\.254\.169\.254`, `metadata\.google\.internal`, `metadata\.azure\.com`},
		},
		{
			Description: "Wildcard network access",
			NetworkDeny: []string{`^\*$`, `^\*\.`},
		},
	}
}

// defaultAllowPatterns are the known-safe requests auto-allowed.
func defaultAllowPatterns() []PolicyPattern {
	return []PolicyPattern{
		{
			Description:        "Pure math operations",
			NamePattern:        `(?i)^(math|calc|convert|compute)_`,
			DescriptionPattern: `(?i)(mathematical|arithmetic|conversion|calculate)`,
		},
		{
			Description: "String/text operations",
			NamePattern: `(?i)^(string|text|format|parse|encode|decode|regex)_`,
		},
	}
}
