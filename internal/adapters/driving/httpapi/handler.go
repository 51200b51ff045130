package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/stitch/internal/core/domain"
	"github.com/custodia-labs/stitch/internal/core/ports/driving"
	"github.com/custodia-labs/stitch/internal/core/services"
	"github.com/custodia-labs/stitch/internal/logger"
)

// DefaultMaxUploadBytes bounds an uploaded chunk when no limit is configured.
const DefaultMaxUploadBytes = 50 << 20

// maxJSONBytes bounds callback and finalize bodies.
const maxJSONBytes = 16 << 20

// HeaderRequestID carries the request correlation id.
const HeaderRequestID = "X-Request-ID"

// ObjectServer serves signed object URLs. It is implemented by the
// filesystem object store; the route is not mounted without one.
type ObjectServer interface {
	VerifySignature(key string, query url.Values) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Deps are the services the API delegates to.
type Deps struct {
	Dispatcher   driving.Dispatcher
	Callbacks    driving.CallbackIngestor
	Finalizer    driving.SessionFinalizer
	Orchestrator driving.Orchestrator
	Query        driving.QueryService

	// Objects is optional.
	Objects ObjectServer

	// MCP is mounted at /mcp when set.
	MCP http.Handler

	// MaxUploadBytes bounds chunk uploads (default: DefaultMaxUploadBytes).
	MaxUploadBytes int64
}

type handler struct {
	deps Deps
}

// NewHandler builds the API router.
func NewHandler(deps Deps) http.Handler {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = DefaultMaxUploadBytes
	}
	h := &handler{deps: deps}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("POST /sessions/{sessionId}/chunks", h.uploadChunk)
	mux.HandleFunc("POST /sessions/{sessionId}/chunks/{seq}/retry", h.retryChunk)
	mux.HandleFunc("POST /sessions/{sessionId}/segments/{index}/resummarize", h.resummarize)
	mux.HandleFunc("POST /sessions/{sessionId}/finalize", h.finalize)
	mux.HandleFunc("POST "+services.CallbackPath, h.callback)
	mux.HandleFunc("GET /sessions/{sessionId}", h.getSession)
	mux.HandleFunc("GET /sessions/{sessionId}/chunks", h.listChunks)
	mux.HandleFunc("GET /sessions/{sessionId}/segments", h.listSegments)
	mux.HandleFunc("GET /sessions/{sessionId}/progress", h.progress)
	mux.HandleFunc("GET /sessions/{sessionId}/summary", h.finalSummary)
	mux.HandleFunc("GET /sessions/{sessionId}/result", h.finalResult)
	if deps.Objects != nil {
		mux.HandleFunc("GET /objects/{key...}", h.getObject)
	}
	if deps.MCP != nil {
		mux.Handle("/mcp", deps.MCP)
	}
	return withRequestID(mux)
}

type requestIDKey struct{}

// withRequestID tags each request with a correlation id, reusing the
// caller's X-Request-ID when present.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		logger.With("request", id).Debug("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeOK(w)
}

func (h *handler) uploadChunk(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	seq, err := intParam(q.Get("seq"), "seq")
	if err != nil {
		writeError(w, r, err)
		return
	}
	startMs, err := int64Param(q.Get("startMs"), "startMs")
	if err != nil {
		writeError(w, r, err)
		return
	}
	endMs, err := int64Param(q.Get("endMs"), "endMs")
	if err != nil {
		writeError(w, r, err)
		return
	}

	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.deps.MaxUploadBytes))
	if err != nil {
		writeError(w, r, err)
		return
	}

	chunk, err := h.deps.Dispatcher.Upload(r.Context(), driving.UploadRequest{
		SessionID:   r.PathValue("sessionId"),
		Seq:         seq,
		StartMs:     startMs,
		EndMs:       endMs,
		Ext:         q.Get("ext"),
		Audio:       audio,
		ContentType: r.Header.Get("Content-Type"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toChunkView(chunk))
}

func (h *handler) retryChunk(w http.ResponseWriter, r *http.Request) {
	seq, err := intParam(r.PathValue("seq"), "seq")
	if err != nil {
		writeError(w, r, err)
		return
	}
	chunk, err := h.deps.Dispatcher.RetryChunk(r.Context(), r.PathValue("sessionId"), seq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toChunkView(chunk))
}

func (h *handler) resummarize(w http.ResponseWriter, r *http.Request) {
	index, err := intParam(r.PathValue("index"), "index")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.deps.Orchestrator.RetrySegmentSummary(r.Context(), r.PathValue("sessionId"), index); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (h *handler) finalize(w http.ResponseWriter, r *http.Request) {
	var ids domain.BusinessIDs
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &ids); err != nil {
			writeError(w, r, fmt.Errorf("%w: business ids: %v", domain.ErrInvalidInput, err))
			return
		}
	}
	// A client hanging up must not stop finalize between its stages.
	if err := h.deps.Finalizer.Finalize(context.WithoutCancel(r.Context()), r.PathValue("sessionId"), ids); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (h *handler) callback(w http.ResponseWriter, r *http.Request) {
	ref, err := services.ParseCallbackRef(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var payload domain.CallbackPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes)).Decode(&payload); err != nil {
		writeError(w, r, fmt.Errorf("%w: callback body: %v", domain.ErrMalformedPayload, err))
		return
	}
	// The merge and its summarization run to completion once the
	// callback is accepted, even if the provider disconnects.
	if err := h.deps.Callbacks.Handle(context.WithoutCancel(r.Context()), ref, payload); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w)
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.deps.Query.Session(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(session))
}

func (h *handler) listChunks(w http.ResponseWriter, r *http.Request) {
	chunks, err := h.deps.Query.Chunks(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]chunkView, 0, len(chunks))
	for i := range chunks {
		views = append(views, toChunkView(&chunks[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) listSegments(w http.ResponseWriter, r *http.Request) {
	segments, err := h.deps.Query.Segments(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]segmentView, 0, len(segments))
	for i := range segments {
		views = append(views, toSegmentView(&segments[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) progress(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Query.Progress(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) finalSummary(w http.ResponseWriter, r *http.Request) {
	h.sessionArtifact(w, r, func(s *domain.Session) string { return s.FinalSummaryKey })
}

func (h *handler) finalResult(w http.ResponseWriter, r *http.Request) {
	h.sessionArtifact(w, r, func(s *domain.Session) string { return s.FinalResultKey })
}

// sessionArtifact serves a JSON document referenced by the session record.
func (h *handler) sessionArtifact(w http.ResponseWriter, r *http.Request, keyOf func(*domain.Session) string) {
	session, err := h.deps.Query.Session(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	key := keyOf(session)
	if key == "" {
		writeError(w, r, fmt.Errorf("%w: session %s has not been finalized", domain.ErrNotFound, session.ID))
		return
	}
	data, err := h.deps.Query.Object(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (h *handler) getObject(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := h.deps.Objects.VerifySignature(key, r.URL.Query()); err != nil {
		logger.With("request", requestID(r.Context()), "key", key).Warn("rejected object request: %v", err)
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), RequestID: requestID(r.Context())})
		return
	}
	data, err := h.deps.Objects.Get(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func intParam(s, name string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", domain.ErrInvalidInput, name, s)
	}
	return n, nil
}

func int64Param(s, name string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", domain.ErrInvalidInput, name, s)
	}
	return n, nil
}

