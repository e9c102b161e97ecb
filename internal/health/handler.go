package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Default endpoint paths.
const (
	DefaultLivenessPath  = "/healthz"
	DefaultReadinessPath = "/readyz"
)

// DefaultPingTimeout bounds the storage check made by /readyz.
const DefaultPingTimeout = 2 * time.Second

// Pinger is the readiness dependency. storage.MemoryStorage and
// storage.RedisStorage satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SkillCounter reports how many skills are registered.
type SkillCounter interface {
	SkillCount() int
}

// SkillCountFunc adapts a function to SkillCounter.
type SkillCountFunc func() int

// SkillCount calls f.
func (f SkillCountFunc) SkillCount() int { return f() }

// Options configures a Handler. Zero paths select the defaults.
type Options struct {
	LivenessPath  string
	ReadinessPath string
	PingTimeout   time.Duration
}

// Handler provides HTTP health check endpoints.
type Handler struct {
	storage       Pinger
	skills        SkillCounter
	version       string
	livenessPath  string
	readinessPath string
	pingTimeout   time.Duration
}

// NewHandler creates a health check handler. storage and skills may be nil:
// a nil storage is always ready and a nil counter reports zero skills.
func NewHandler(storage Pinger, skills SkillCounter, version string, opts Options) *Handler {
	h := &Handler{
		storage:       storage,
		skills:        skills,
		version:       version,
		livenessPath:  opts.LivenessPath,
		readinessPath: opts.ReadinessPath,
		pingTimeout:   opts.PingTimeout,
	}
	if h.livenessPath == "" {
		h.livenessPath = DefaultLivenessPath
	}
	if h.readinessPath == "" {
		h.readinessPath = DefaultReadinessPath
	}
	if h.pingTimeout <= 0 {
		h.pingTimeout = DefaultPingTimeout
	}
	return h
}

// ServeHTTP routes to the appropriate health endpoint.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case h.livenessPath:
		h.handleLiveness(w, r)
	case h.readinessPath:
		h.handleReadiness(w, r)
	default:
		http.NotFound(w, r)
	}
}

// LivenessResponse is the JSON response for the liveness endpoint.
type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadinessResponse is the JSON response for the readiness endpoint.
type ReadinessResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
	Skills  int    `json:"skills"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
	})
}

func (h *Handler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	resp := ReadinessResponse{Status: "ready", Storage: "ok"}
	if h.skills != nil {
		resp.Skills = h.skills.SkillCount()
	}

	status := http.StatusOK
	if h.storage != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.pingTimeout)
		defer cancel()
		if err := h.storage.Ping(ctx); err != nil {
			resp.Status = "not_ready"
			resp.Storage = "unavailable"
			resp.Error = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
