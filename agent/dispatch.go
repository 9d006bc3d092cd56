package agent

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// dispatchBody is the job server's POST /dispatch request: just enough to
// identify the session the executor should fetch and run.
type dispatchBody struct {
	SessionID string `json:"session_id"`
}

// router builds the agent's local HTTP surface: a single POST /dispatch
// endpoint gated by the busy sentinel.
func (a *Agent) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/dispatch", a.handleDispatch)
	return r
}

func (a *Agent) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var body dispatchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !a.busy.CompareAndSwap(false, true) {
		w.WriteHeader(http.StatusPreconditionFailed)
		json.NewEncoder(w).Encode(map[string]string{"error": "Busy"}) //nolint:errcheck
		return
	}

	// queue has capacity 1 and busy was false, so this never blocks: the
	// previous occupant, if any, has already been dequeued and the
	// sentinel cleared by the time a second dispatch is accepted.
	a.queue <- body.SessionID

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "started"}) //nolint:errcheck
}
