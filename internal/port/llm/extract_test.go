package llm

import "testing"

type kv struct {
	Key string `json:"key"`
}

func TestExtractDirectJSON(t *testing.T) {
	v, ok := ExtractJSON[kv](`{"key": "value"}`)
	if !ok || v.Key != "value" {
		t.Fatalf("got %+v ok=%v", v, ok)
	}
}

func TestExtractFromCodeFence(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"key\": \"value\"}\n```\nDone."
	v, ok := ExtractJSON[kv](raw)
	if !ok || v.Key != "value" {
		t.Fatalf("got %+v ok=%v", v, ok)
	}
}

func TestExtractFromSurroundingText(t *testing.T) {
	raw := "Sure, here is the JSON:\n{\"key\": \"value\"}\nHope that helps!"
	v, ok := ExtractJSON[kv](raw)
	if !ok || v.Key != "value" {
		t.Fatalf("got %+v ok=%v", v, ok)
	}
}

func TestExtractAfterThinkBlock(t *testing.T) {
	raw := "<think>Let me analyze `this` and weigh the `options`.\nSimple design wins.</think>\n{\"key\": \"value\"}"
	v, ok := ExtractJSON[kv](raw)
	if !ok || v.Key != "value" {
		t.Fatalf("got %+v ok=%v", v, ok)
	}
}

func TestExtractFenceAfterThinkBlock(t *testing.T) {
	raw := "<think>Reasoning with `backticks` inside.</think>\n```json\n{\"key\": \"value\"}\n```"
	v, ok := ExtractJSON[kv](raw)
	if !ok || v.Key != "value" {
		t.Fatalf("got %+v ok=%v", v, ok)
	}
}

func TestExtractFailsOnProse(t *testing.T) {
	if _, ok := ExtractJSON[kv]("This is just text with no JSON"); ok {
		t.Fatal("expected extraction failure")
	}
}

func TestStripThinkBlocks(t *testing.T) {
	if got := stripThinkBlocks("before<think>hidden</think>after"); got != "beforeafter" {
		t.Fatalf("got %q", got)
	}
	if got := stripThinkBlocks("no tags here"); got != "no tags here" {
		t.Fatalf("got %q", got)
	}
	if got := stripThinkBlocks("keep<think>unclosed"); got != "keep" {
		t.Fatalf("got %q", got)
	}
}
