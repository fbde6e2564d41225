package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	v1 "ripple/shared/contracts/realtime/v1"
)

// PollGateway is the pull-transport HTTP surface.
//
// GET /poll?since=<seq>&wait=<seconds> blocks up to the bounded wait for new
// events, then returns {events, server_ts}. A timeout is a 200 with an empty
// event list. POST /heartbeat records pull-transport liveness.
type PollGateway struct {
	log      *slog.Logger
	engine   *Engine
	verifier TokenVerifier
}

// NewPollGateway constructs the pull-transport gateway.
func NewPollGateway(log *slog.Logger, engine *Engine, verifier TokenVerifier) *PollGateway {
	return &PollGateway{log: log, engine: engine, verifier: verifier}
}

// Register mounts the pull-transport routes.
func (g *PollGateway) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /poll", g.handlePoll)
	mux.HandleFunc("POST /heartbeat", g.handleHeartbeat)
}

func (g *PollGateway) authenticate(r *http.Request) (string, bool) {
	token := BearerToken(r.Header.Get("Authorization"), r.URL.Query().Get("token"))
	userID, err := g.verifier.Verify(r.Context(), token)
	if err != nil {
		return "", false
	}
	return userID, true
}

func (g *PollGateway) handlePoll(w http.ResponseWriter, r *http.Request) {
	userID, ok := g.authenticate(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing token")
		return
	}

	sinceSeq := parseInt64Query(r, "since", 0)
	wait := time.Duration(parseInt64Query(r, "wait", 0)) * time.Second

	// Polling is itself a liveness signal.
	g.engine.Heartbeat(userID)

	events, err := g.engine.AwaitUpdates(r.Context(), userID, sinceSeq, wait)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Client went away mid-poll; nothing to write.
			return
		}
		g.log.Info("poll.await.fail", "user_id", userID, "err", err)
		writeJSONError(w, http.StatusBadGateway, "membership_unavailable", "cannot resolve updates right now")
		return
	}
	if events == nil {
		events = []v1.Envelope{}
	}

	writeJSON(w, http.StatusOK, v1.PollResponse{
		Events:   events,
		ServerTS: time.Now().UTC(),
	})
}

func (g *PollGateway) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	userID, ok := g.authenticate(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing token")
		return
	}

	g.engine.Heartbeat(userID)
	w.WriteHeader(http.StatusNoContent)
}

// ---- small HTTP helpers ----

func parseInt64Query(r *http.Request, key string, def int64) int64 {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, v1.ErrorPayload{Code: code, Message: msg})
}
