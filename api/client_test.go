package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCallJSONRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["id"] != "node-1" {
			t.Errorf("body[id] = %v, want node-1", body["id"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	}))
	defer srv.Close()

	c := NewClient(nil, Config{Endpoint: srv.URL})

	var result map[string]any
	err := c.Call(context.Background(), "", "/agent/register", nil, map[string]any{"id": "node-1"}, &result)
	if err != nil {
		t.Fatalf("Call() = %v", err)
	}
	if result["status"] != "ok" {
		t.Fatalf("result[status] = %v, want ok", result["status"])
	}
}

func TestCallTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
		w.Write([]byte("Busy"))
	}))
	defer srv.Close()

	c := NewClient(nil, Config{Endpoint: srv.URL})
	err := c.Call(context.Background(), "", "/dispatch", nil, map[string]any{}, nil)
	if err == nil {
		t.Fatal("Call() = nil, want TransportError")
	}
	var te *TransportError
	if !isTransportError(err, &te) {
		t.Fatalf("Call() = %v, want *TransportError", err)
	}
	if te.Code != http.StatusPreconditionFailed {
		t.Fatalf("Code = %d, want 412", te.Code)
	}
}

func TestRawBodyDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("file contents"))
	}))
	defer srv.Close()

	c := NewClient(nil, Config{Endpoint: srv.URL})
	req, err := c.NewRequest(context.Background(), http.MethodGet, "/f/build-1/out.log", nil, nil)
	if err != nil {
		t.Fatalf("NewRequest() = %v", err)
	}

	var buf bytes.Buffer
	if _, err := c.Do(req, &RawBody{Writer: &buf}); err != nil {
		t.Fatalf("Do() = %v", err)
	}
	if buf.String() != "file contents" {
		t.Fatalf("buf = %q, want %q", buf.String(), "file contents")
	}
}

func isTransportError(err error, target **TransportError) bool {
	te, ok := err.(*TransportError)
	if ok {
		*target = te
	}
	return ok
}
