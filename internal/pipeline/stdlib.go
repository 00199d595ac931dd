package pipeline

import (
	"encoding/json"

	"github.com/epiphytic/girt/internal/domain/spec"
)

// StandardLibrary returns the canned capability specs used to pre-warm
// the queue on first run: the tools nearly every agent session reaches
// for.
func StandardLibrary() []spec.CapabilitySpec {
	return []spec.CapabilitySpec{
		httpClient(),
		jsonTransform(),
		textProcessing(),
		cryptoHash(),
		csvParser(),
		githubAPI(),
	}
}

func httpClient() spec.CapabilitySpec {
	return spec.CapabilitySpec{
		Name:        "http_fetch",
		Description: "Fetch a URL with GET and return status, headers, and body",
		Inputs:      json.RawMessage(`{"url": "string", "headers": "object"}`),
		Outputs:     json.RawMessage(`{"status": "number", "headers": "object", "body": "string"}`),
		Constraints: spec.Constraints{Network: []string{"example.com"}},
	}
}

func jsonTransform() spec.CapabilitySpec {
	return spec.CapabilitySpec{
		Name:        "parse_transform",
		Description: "Apply a path expression to a JSON document and return the selection",
		Inputs:      json.RawMessage(`{"document": "string", "path": "string"}`),
		Outputs:     json.RawMessage(`{"result": "any"}`),
	}
}

func textProcessing() spec.CapabilitySpec {
	return spec.CapabilitySpec{
		Name:        "text_stats",
		Description: "Count lines, words, and characters in a text block",
		Inputs:      json.RawMessage(`{"text": "string"}`),
		Outputs:     json.RawMessage(`{"lines": "number", "words": "number", "chars": "number"}`),
	}
}

func cryptoHash() spec.CapabilitySpec {
	return spec.CapabilitySpec{
		Name:        "compute_digest",
		Description: "Calculate the SHA-256 digest of the input text",
		Inputs:      json.RawMessage(`{"text": "string"}`),
		Outputs:     json.RawMessage(`{"hex": "string"}`),
	}
}

func csvParser() spec.CapabilitySpec {
	return spec.CapabilitySpec{
		Name:        "parse_csv",
		Description: "Parse CSV text into an array of row objects keyed by header",
		Inputs:      json.RawMessage(`{"csv": "string", "delimiter": "string"}`),
		Outputs:     json.RawMessage(`{"rows": "array"}`),
	}
}

func githubAPI() spec.CapabilitySpec {
	return spec.CapabilitySpec{
		Name:        "github_issues",
		Description: "Query GitHub issues for a repository with state filtering",
		Inputs:      json.RawMessage(`{"repo": "string", "state": "string"}`),
		Outputs:     json.RawMessage(`{"issues": "array"}`),
		Constraints: spec.Constraints{
			Network: []string{"api.github.com"},
			Secrets: []string{"GITHUB_TOKEN"},
		},
	}
}
