package eventlog

import (
	"encoding/json"
	"testing"
)

func TestMarshalOmitsEmptyParams(t *testing.T) {
	b, err := Marshal(JobBegun{})
	if err != nil {
		t.Fatalf("Marshal() = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal() = %v", err)
	}
	if got["type"] != "job-begun" {
		t.Fatalf("type = %v, want job-begun", got["type"])
	}
	if _, ok := got["params"]; ok {
		t.Fatalf("params present, want omitted for a params-less event")
	}
}

func TestMarshalStepBegun(t *testing.T) {
	ev := StepBegun{Name: "build", Args: []any{"x"}, Kwargs: map[string]any{"k": "v"}, LogStart: 10}
	b, err := Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal() = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal() = %v", err)
	}
	params, ok := got["params"].(map[string]any)
	if !ok {
		t.Fatalf("params = %v, want map", got["params"])
	}
	if params["name"] != "build" {
		t.Fatalf("params[name] = %v, want build", params["name"])
	}
}

func TestArtifactAddedOmitsDescriptionWhenEmpty(t *testing.T) {
	ev := ArtifactAdded{Filename: "out.zip", URL: "http://x/f/1/out.zip"}
	params := ev.Params().(map[string]any)
	if _, ok := params["description"]; ok {
		t.Fatalf("description present, want omitted when empty")
	}
}
