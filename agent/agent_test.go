package agent

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDispatchRejectsWhenBusy(t *testing.T) {
	a := &Agent{queue: make(chan string, 1)}
	a.busy.Store(true)

	req := httptest.NewRequest(http.MethodPost, "/dispatch", bytes.NewReader([]byte(`{"session_id":"s-1"}`)))
	w := httptest.NewRecorder()
	a.handleDispatch(w, req)

	if w.Code != http.StatusPreconditionFailed {
		t.Fatalf("code = %d, want %d", w.Code, http.StatusPreconditionFailed)
	}
}

func TestDispatchAcceptsWhenIdle(t *testing.T) {
	a := &Agent{queue: make(chan string, 1)}

	req := httptest.NewRequest(http.MethodPost, "/dispatch", bytes.NewReader([]byte(`{"session_id":"s-1"}`)))
	w := httptest.NewRecorder()
	a.handleDispatch(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("code = %d, want %d", w.Code, http.StatusOK)
	}
	if !a.busy.Load() {
		t.Fatal("busy = false, want true after accepted dispatch")
	}

	select {
	case id := <-a.queue:
		if id != "s-1" {
			t.Fatalf("queued id = %q, want s-1", id)
		}
	default:
		t.Fatal("queue empty, want the dispatched session id")
	}
}

func TestDispatchBadBodyRejected(t *testing.T) {
	a := &Agent{queue: make(chan string, 1)}
	req := httptest.NewRequest(http.MethodPost, "/dispatch", bytes.NewReader([]byte(`not json`)))
	w := httptest.NewRecorder()
	a.handleDispatch(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
