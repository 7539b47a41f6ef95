package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/conversantai/retrieval-engine/action"
	"github.com/conversantai/retrieval-engine/pipeline"
	"github.com/conversantai/retrieval-engine/session"
	"github.com/conversantai/retrieval-engine/streamevent"
	"github.com/conversantai/retrieval-engine/telemetry"
)

type (
	// modelRef identifies a provider and credential for a chat or embedding
	// model, carried verbatim from the request body through to provider
	// construction; Handler itself is provider-agnostic and only forwards it.
	modelRef struct {
		ProviderID string `json:"providerId"`
		Key        string `json:"key"`
	}

	// chatMessage is the new message being appended to chatId's history.
	chatMessage struct {
		MessageID string `json:"messageId"`
		ChatID    string `json:"chatId"`
		Content   string `json:"content"`
	}

	// historyTurn is a single ["human"|"assistant", content] pair.
	historyTurn [2]string

	// ChatRequest is the external request body for POST /chat.
	ChatRequest struct {
		Message            chatMessage   `json:"message"`
		ChatID             string        `json:"chatId"`
		ChatModel          modelRef      `json:"chatModel"`
		EmbeddingModel     modelRef      `json:"embeddingModel"`
		History            []historyTurn `json:"history"`
		Sources            []string      `json:"sources"`
		OptimizationMode   string        `json:"optimizationMode"`
		SystemInstructions string        `json:"systemInstructions"`
	}

	// ChatResponse is the single-object body returned when the caller does
	// not request streaming (no ?stream=true).
	ChatResponse struct {
		SessionID string              `json:"sessionId"`
		Events    []streamevent.Event `json:"events"`
	}

	// Handler serves POST /chat, driving req through a Pipeline against a
	// fresh Session and framing the session's event stream back to the
	// caller, either as SSE or as one buffered JSON response.
	Handler struct {
		store    *session.Store
		pipeline *pipeline.Pipeline
		log      telemetry.Logger
	}
)

// NewHandler constructs a Handler serving requests against store by driving
// them through p.
func NewHandler(store *session.Store, p *pipeline.Pipeline, log telemetry.Logger) *Handler {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Handler{store: store, pipeline: p, log: log}
}

// ServeHTTP implements POST /chat. With ?stream=true it upgrades to SSE and
// streams events as the pipeline produces them; otherwise it buffers the
// full event sequence and returns it as one JSON object once the session
// reaches its terminal end event.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sess := h.store.Create(uuid.NewString())

	pipelineReq := pipeline.Request{
		Query:              req.Message.Content,
		History:            toTurns(req.History),
		Mode:               action.Mode(req.OptimizationMode),
		EnabledSources:     req.Sources,
		SystemInstructions: req.SystemInstructions,
	}

	if r.URL.Query().Get("stream") == "true" {
		h.serveStream(w, r, sess, pipelineReq)
		return
	}
	h.serveBuffered(w, r, sess, pipelineReq)
}

func (h *Handler) serveStream(w http.ResponseWriter, r *http.Request, sess *session.Session, req pipeline.Request) {
	enc := NewSSEEncoder(w)
	done := make(chan struct{})

	unsub := sess.Subscribe(r.Context(), sinkFunc(func(ctx context.Context, ev streamevent.Event) error {
		if err := enc.Write(ev); err != nil {
			return err
		}
		if ev.Type == streamevent.TypeEnd || ev.Type == streamevent.TypeError {
			close(done)
		}
		return nil
	}))
	defer unsub()

	go h.pipeline.Run(r.Context(), sess, req)

	select {
	case <-done:
	case <-r.Context().Done():
	}
	_ = enc.Done()
}

func (h *Handler) serveBuffered(w http.ResponseWriter, r *http.Request, sess *session.Session, req pipeline.Request) {
	var resp ChatResponse
	resp.SessionID = sess.ID()
	done := make(chan struct{})

	unsub := sess.Subscribe(r.Context(), sinkFunc(func(_ context.Context, ev streamevent.Event) error {
		resp.Events = append(resp.Events, ev)
		if ev.Type == streamevent.TypeEnd || ev.Type == streamevent.TypeError {
			close(done)
		}
		return nil
	}))
	defer unsub()

	h.pipeline.Run(r.Context(), sess, req)

	select {
	case <-done:
	case <-r.Context().Done():
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// sinkFunc adapts a plain function to streamevent.Sink.
type sinkFunc func(ctx context.Context, ev streamevent.Event) error

func (f sinkFunc) Send(ctx context.Context, ev streamevent.Event) error { return f(ctx, ev) }

func toTurns(history []historyTurn) []pipeline.Turn {
	out := make([]pipeline.Turn, 0, len(history))
	for _, h := range history {
		role := "human"
		if h[0] == "assistant" {
			role = "assistant"
		}
		out = append(out, pipeline.Turn{Role: role, Content: h[1]})
	}
	return out
}
