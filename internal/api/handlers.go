package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/apper-canvas/linguaflow-1080p-card/internal/catalog"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/chat"
	"github.com/apper-canvas/linguaflow-1080p-card/internal/grammar"
)

// ─────────────────────────────────────────────────────────────────────────────
// Catalog and rules
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) getCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, catalog.All())
}

func (s *Server) getTopics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalog.FilterTopics(r.URL.Query().Get("mode")))
}

// ruleView is the wire form of a [grammar.Rule].
type ruleView struct {
	Label       string   `json:"label"`
	Pattern     string   `json:"pattern"`
	Original    string   `json:"original"`
	Corrected   string   `json:"corrected"`
	Explanation string   `json:"explanation"`
	Score       *float64 `json:"score,omitempty"`
}

func viewRule(r grammar.Rule) ruleView {
	v := ruleView{
		Label:       r.Label,
		Original:    r.Original,
		Corrected:   r.Corrected,
		Explanation: r.Explanation,
	}
	if r.Pattern != nil {
		v.Pattern = r.Pattern.String()
	}
	return v
}

func (s *Server) listRules(w http.ResponseWriter, _ *http.Request) {
	rules := s.ctl.Rules().Rules()
	out := make([]ruleView, len(rules))
	for i, r := range rules {
		out[i] = viewRule(r)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) lookupRule(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		badRequest(w, "query parameter q is required")
		return
	}
	rule, score, ok := s.ctl.Rules().Lookup(q)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no rule matches " + strconv.Quote(q)})
		return
	}
	v := viewRule(rule)
	v.Score = &score
	writeJSON(w, http.StatusOK, v)
}

// ─────────────────────────────────────────────────────────────────────────────
// Conversations
// ─────────────────────────────────────────────────────────────────────────────

type startRequest struct {
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
	Language   string `json:"language,omitempty"`
	Mode       string `json:"mode,omitempty"`
}

func (s *Server) startConversation(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	conv, err := s.ctl.StartConversation(r.Context(), catalog.Selection{
		Topic:      req.Topic,
		Difficulty: req.Difficulty,
		Language:   req.Language,
		Mode:       req.Mode,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.ctl.Conversations(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid conversation id")
		return
	}
	conv, err := s.ctl.Conversation(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid conversation id")
		return
	}
	if !s.ctl.EndSession(id) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no active session"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type stateView struct {
	Active    bool `json:"active"`
	Busy      bool `json:"busy"`
	Composing bool `json:"composing"`
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid conversation id")
		return
	}
	if _, err := s.ctl.Conversation(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateView{
		Active:    s.ctl.Active(id),
		Busy:      s.ctl.Busy(id),
		Composing: s.ctl.Composing(id),
	})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid conversation id")
		return
	}
	rep, err := s.ctl.Stats(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type auditView struct {
	Consistent bool              `json:"consistent"`
	Drift      map[string][2]int `json:"drift,omitempty"`
}

func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid conversation id")
		return
	}
	drift, err := s.ctl.Audit(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, auditView{Consistent: len(drift) == 0, Drift: drift})
}

func (s *Server) getTranscript(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid conversation id")
		return
	}
	tr, err := s.ctl.Transcript(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func (s *Server) recentCorrections(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid conversation id")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	cs, err := s.ctl.RecentCorrections(r.Context(), id, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

// ─────────────────────────────────────────────────────────────────────────────
// Send cycle
// ─────────────────────────────────────────────────────────────────────────────

type sendRequest struct {
	Text string `json:"text"`
}

// sendMessage runs one send cycle. Blank input is a no-op and answers 204.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid conversation id")
		return
	}
	var req sendRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	turn, err := s.ctl.Send(r.Context(), id, req.Text)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		w.WriteHeader(http.StatusNoContent)
	case err != nil:
		respondError(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, turn)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Correction lifecycle
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) acceptCorrection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid correction id")
		return
	}
	c, err := s.ctl.Lifecycle().Accept(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) rejectCorrection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid correction id")
		return
	}
	c, err := s.ctl.Lifecycle().Reject(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
