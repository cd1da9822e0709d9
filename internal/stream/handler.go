package stream

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"

	"avatar-live/internal/media"
	"avatar-live/internal/platform/logger"
	"avatar-live/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"
	segmentContentType  = "video/mp2t"
	multipartMemory     = 8 << 20
)

// Handler exposes the stream registry over HTTP and WebSocket using go-chi.
type Handler struct {
	reg            *Registry
	log            *slog.Logger
	metrics        *metrics.Metrics
	maxUploadBytes int64
	upgrader       websocket.Upgrader
}

// NewHandler returns a Handler for reg. Metrics may be nil to disable metric
// recording (e.g. in tests). maxUploadBytes bounds each asset of a start request.
func NewHandler(reg *Registry, log *slog.Logger, m *metrics.Metrics, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{
		reg:            reg,
		log:            log.With(slog.String("component", "http")),
		metrics:        m,
		maxUploadBytes: maxUploadBytes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Routes mounts every stream endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/streams/start", h.StartStream)
	r.Post("/streams/text", h.EnqueueText)
	r.Post("/streams/stop", h.StopStream)
	r.Get("/streams/{stream_key}", h.GetStatus)
	r.Get("/streams/{stream_key}/events", h.GetEvents)
	r.Get("/ws/{stream_key}", h.TextChannel)
	r.Get("/live/{stream_key}/index.m3u8", h.GetPlaylist)
	r.Get("/live/{stream_key}/{segment}", h.GetSegment)
	r.Get("/healthz", h.Health)
}

type textRequest struct {
	StreamKey string `json:"streamKey"`
	Text      string `json:"text"`
}

type stopRequest struct {
	StreamKey string `json:"streamKey"`
}

// StartStream handles POST /streams/start.
// Multipart form: streamKey, avatar, background, logo.
func (h *Handler) StartStream(w http.ResponseWriter, r *http.Request) {
	// Three assets plus form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, 3*h.maxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, ErrPayloadTooLarge)
			return
		}
		h.writeJSON(w, http.StatusBadRequest, errorBody("invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	key := r.FormValue("streamKey")
	if _, err := ParseKey(key); err != nil {
		h.writeError(w, err)
		return
	}

	var files []multipart.File
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	open := func(field string) (multipart.File, bool) {
		f, _, err := r.FormFile(field)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorBody("missing file: "+field))
			return nil, false
		}
		files = append(files, f)
		return f, true
	}
	avatar, ok := open("avatar")
	if !ok {
		return
	}
	background, ok := open("background")
	if !ok {
		return
	}
	logo, ok := open("logo")
	if !ok {
		return
	}

	ref, err := h.reg.Start(r.Context(), key, Uploads{Avatar: avatar, Background: background, Logo: logo})
	if err != nil {
		h.log.Error("start stream failed", slog.String("stream_key", key), logger.Err(err))
		h.writeError(w, err)
		return
	}

	h.log.Info("stream started", slog.String("stream_key", key), slog.String("session_id", ref.SessionID))
	h.writeJSON(w, http.StatusOK, ref)
}

// EnqueueText handles POST /streams/text.
// Body: { "streamKey": "demo-1", "text": "hello" }.
func (h *Handler) EnqueueText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid text body", logger.Err(err))
		h.writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	depth, err := h.reg.Enqueue(req.StreamKey, req.Text)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "queued", "queueDepth": depth})
}

// StopStream handles POST /streams/stop.
// Body: { "streamKey": "demo-1" }.
func (h *Handler) StopStream(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	if err := h.reg.Stop(req.StreamKey); err != nil {
		h.writeError(w, err)
		return
	}
	h.log.Info("stream stopped", slog.String("stream_key", req.StreamKey))
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// GetStatus handles GET /streams/{stream_key}.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.reg.Status(chi.URLParam(r, "stream_key"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

// GetEvents handles GET /streams/{stream_key}/events?limit=N.
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			h.writeJSON(w, http.StatusBadRequest, errorBody("invalid limit"))
			return
		}
		limit = n
	}
	events, err := h.reg.Events(r.Context(), chi.URLParam(r, "stream_key"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// GetPlaylist handles GET /live/{stream_key}/index.m3u8.
func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	path, err := h.reg.PlaylistPath(chi.URLParam(r, "stream_key"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.serveFile(w, r, path, playlistContentType, "Playlist not found")
}

// GetSegment handles GET /live/{stream_key}/{segment}.
func (h *Handler) GetSegment(w http.ResponseWriter, r *http.Request) {
	path, err := h.reg.SegmentPath(chi.URLParam(r, "stream_key"), chi.URLParam(r, "segment"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.serveFile(w, r, path, segmentContentType, "Segment not found")
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, path, contentType, missing string) {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		h.writeJSON(w, http.StatusNotFound, errorBody(missing))
		return
	}
	w.Header().Set("Content-Type", contentType)
	// The playlist grows; players must re-fetch it.
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, path)
}

// Health handles GET /healthz. It reports 503 while the media tools are missing.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.reg.Ready(r.Context()); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": h.reg.Count()})
}

// statusFor maps an error to its HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidKey), errors.Is(err, media.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, media.ErrEngineUnavailable), errors.Is(err, ErrRegistryClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, media.ErrEngineFailed), errors.Is(err, media.ErrEncodeFailed), errors.Is(err, media.ErrProbeFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	h.writeJSON(w, code, errorBody(msg))
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("write response failed", logger.Err(err))
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
