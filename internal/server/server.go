package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voiceoverkit/go-voiceover/internal/audio"
	"github.com/voiceoverkit/go-voiceover/internal/config"
	"github.com/voiceoverkit/go-voiceover/speech"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Narrator runs the synthesis pipeline for one narration request and looks
// up previously cached clips. *speech.Synthesizer satisfies it.
type Narrator interface {
	Synthesize(ctx context.Context, text string, overrides any) (*speech.Narration, error)
	Cached(hash string) (*speech.Narration, bool)
}

var _ Narrator = (*speech.Synthesizer)(nil)

// OverridesDecoder turns the raw "overrides" JSON of a narration request
// into the service-specific overrides value the adapter expects.
type OverridesDecoder func(raw json.RawMessage) (any, error)

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
	decodeOverride OverridesDecoder
}

func defaultOptions() options {
	return options{
		maxTextBytes:   4096,
		workers:        2,
		requestTimeout: 60 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes for POST /narrations.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithWorkers sets the maximum number of concurrent synthesis calls.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request synthesis deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithOverridesDecoder installs the decoder for the request "overrides"
// field. Without one, requests carrying overrides are rejected.
func WithOverridesDecoder(fn OverridesDecoder) Option {
	return func(o *options) { o.decodeOverride = fn }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	narrator Narrator
	voices   speech.VoiceLister // nil when the service cannot list voices
	opts     options
	sem      chan struct{} // semaphore for worker pool
	log      *slog.Logger
}

// NewHandler returns an http.Handler serving /healthz, /voices, and the
// /narrations routes.
func NewHandler(narrator Narrator, voices speech.VoiceLister, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		narrator: narrator,
		voices:   voices,
		opts:     opts,
		log:      opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /voices", h.handleVoices)
	mux.HandleFunc("POST /narrations", h.handleNarrate)
	mux.HandleFunc("GET /narrations/{hash}/audio", h.handleAudio)
	return h.withRequestID(mux)
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// ---------------------------------------------------------------------------
// request-id middleware
// ---------------------------------------------------------------------------

type ctxKey int

const loggerKey ctxKey = iota

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withRequestID tags every request with a fresh uuid, exposes it as the
// X-Request-ID response header, and emits one access log line per request.
func (h *handler) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := uuid.NewString()
		w.Header().Set("X-Request-ID", rid)

		log := h.log.With(slog.String("request_id", rid))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		ctx := context.WithValue(r.Context(), loggerKey, log)
		next.ServeHTTP(rec, r.WithContext(ctx))

		log.Info("request handled",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

// reqLog returns the per-request logger installed by withRequestID.
func (h *handler) reqLog(r *http.Request) *slog.Logger {
	if l, ok := r.Context().Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return h.log
}

// ---------------------------------------------------------------------------
// routes
// ---------------------------------------------------------------------------

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

type voiceResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Language    string `json:"language,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Description string `json:"description,omitempty"`
}

func (h *handler) handleVoices(w http.ResponseWriter, r *http.Request) {
	if h.voices == nil {
		writeError(w, http.StatusNotImplemented, "voice listing is not supported by this service")
		return
	}

	voices, err := h.voices.Voices(r.Context())
	if err != nil {
		var ve *speech.VendorError
		if errors.As(err, &ve) {
			writeVendorError(w, ve)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]voiceResponse, 0, len(voices))
	for _, v := range voices {
		out = append(out, voiceResponse{
			ID:          v.ID,
			Name:        v.Name,
			Language:    v.Language,
			Gender:      v.Gender,
			Description: v.Description,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type narrateRequest struct {
	Text      string          `json:"text"`
	Overrides json.RawMessage `json:"overrides"`
}

type narrationResponse struct {
	Hash       string `json:"hash"`
	Service    string `json:"service"`
	Text       string `json:"text"`
	DurationMS int64  `json:"duration_ms"`
	SampleRate int    `json:"sample_rate"`
	NumWords   int    `json:"num_words"`
	Cached     bool   `json:"cached"`
	AudioURL   string `json:"audio_url"`
}

func (h *handler) handleNarrate(w http.ResponseWriter, r *http.Request) {
	log := h.reqLog(r)

	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}

	var req narrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text field is required")
		return
	}

	if len(req.Text) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return
	}

	var overrides any
	if len(req.Overrides) > 0 && string(req.Overrides) != "null" {
		if h.opts.decodeOverride == nil {
			writeError(w, http.StatusBadRequest, "overrides are not supported")
			return
		}
		var err error
		overrides, err = h.opts.decodeOverride(req.Overrides)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid overrides: "+err.Error())
			return
		}
	}

	// Acquire a worker slot, honouring context cancellation while waiting.
	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
			// slot acquired
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return
		}
		defer func() { <-h.sem }()
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	start := time.Now()
	n, err := h.narrator.Synthesize(ctx, req.Text, overrides)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		switch {
		case errors.Is(err, speech.ErrEmptyText):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			log.WarnContext(r.Context(), "synthesis timed out",
				slog.Int("text_len", len(req.Text)),
				slog.Int64("duration_ms", durationMS),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusGatewayTimeout, "synthesis timed out")
		default:
			var ve *speech.VendorError
			if errors.As(err, &ve) {
				log.ErrorContext(r.Context(), "vendor call failed",
					slog.String("service", ve.Service),
					slog.Int("vendor_status", ve.StatusCode),
					slog.Int64("duration_ms", durationMS),
					slog.String("error", ve.Error()),
				)
				writeVendorError(w, ve)
				return
			}
			log.ErrorContext(r.Context(), "synthesis failed",
				slog.Int("text_len", len(req.Text)),
				slog.Int64("duration_ms", durationMS),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	log.InfoContext(r.Context(), "narration complete",
		slog.String("hash", n.Hash),
		slog.String("service", n.Service),
		slog.Int("text_len", len(req.Text)),
		slog.Int64("duration_ms", durationMS),
		slog.Int64("clip_ms", n.Duration.Milliseconds()),
		slog.Bool("cached", n.Cached),
	)

	writeJSON(w, http.StatusOK, narrationResponse{
		Hash:       n.Hash,
		Service:    n.Service,
		Text:       n.StrippedText,
		DurationMS: n.Duration.Milliseconds(),
		SampleRate: n.SampleRate,
		NumWords:   len(n.WordBoundaries),
		Cached:     n.Cached,
		AudioURL:   "/narrations/" + n.Hash + "/audio",
	})
}

func (h *handler) handleAudio(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")

	n, ok := h.narrator.Cached(hash)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown narration hash")
		return
	}

	data, err := os.ReadFile(n.AudioPath)
	if err != nil {
		h.reqLog(r).ErrorContext(r.Context(), "read cached audio",
			slog.String("hash", hash),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "cached audio unavailable")
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(audio.DetectFormat(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func contentTypeFor(f audio.Format) string {
	switch f {
	case audio.FormatMP3:
		return "audio/mpeg"
	case audio.FormatWAV:
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeVendorError(w http.ResponseWriter, ve *speech.VendorError) {
	writeJSON(w, http.StatusBadGateway, map[string]any{
		"error":         ve.Error(),
		"service":       ve.Service,
		"vendor_status": ve.StatusCode,
	})
}

// ---------------------------------------------------------------------------
// Server lifecycle
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	narrator        Narrator
	voices          speech.VoiceLister
	decodeOverride  OverridesDecoder
	shutdownTimeout time.Duration
}

func New(cfg config.Config, narrator Narrator, voices speech.VoiceLister) *Server {
	shutdown := 30 * time.Second
	if cfg.Server.ShutdownTimeoutS > 0 {
		shutdown = time.Duration(cfg.Server.ShutdownTimeoutS) * time.Second
	}
	return &Server{
		cfg:             cfg,
		narrator:        narrator,
		voices:          voices,
		shutdownTimeout: shutdown,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithOverridesDecoder installs the per-service overrides decoder.
func (s *Server) WithOverridesDecoder(fn OverridesDecoder) *Server {
	s.decodeOverride = fn
	return s
}

func (s *Server) Start(ctx context.Context) error {
	if s.narrator == nil {
		return errors.New("server: narrator is required")
	}

	h := NewHandler(s.narrator, s.voices,
		WithWorkers(s.cfg.Server.Workers),
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeoutS)*time.Second),
		WithOverridesDecoder(s.decodeOverride),
	)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP issues a GET against the health endpoint of a running server.
func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/healthz") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
