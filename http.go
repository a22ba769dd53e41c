package modkit

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ActorHeader carries the acting account id on dispatch requests.
const ActorHeader = "X-Modkit-Actor"

// Handler exposes the service over HTTP for operators and bridge processes:
//
//	POST /v1/dispatch   Request body, Result response
//	GET  /healthz       HealthReport
//	GET  /metrics       Prometheus exposition
type Handler struct {
	service      *Service
	health       *HealthService
	gatherer     prometheus.Gatherer
	getActorID   func(*http.Request) (int64, bool)
	errorHandler func(http.ResponseWriter, *http.Request, error)
	mux          *http.ServeMux
}

// HandlerOption configures the Handler.
type HandlerOption func(*Handler)

// NewHandler creates a new Handler.
//
// Example:
//
//	h := modkit.NewHandler(service,
//	    modkit.WithHealth(modkit.NewHealthService(service, kit)),
//	    modkit.WithGatherer(registry),
//	)
//	http.ListenAndServe(":8080", h)
func NewHandler(service *Service, opts ...HandlerOption) *Handler {
	h := &Handler{
		service:      service,
		health:       NewHealthService(service, nil),
		gatherer:     prometheus.DefaultGatherer,
		getActorID:   defaultGetActorID,
		errorHandler: defaultErrorHandler,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.mux = http.NewServeMux()
	h.mux.HandleFunc("POST /v1/dispatch", h.dispatch)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	return h
}

// WithHealth sets the health service used by /healthz.
func WithHealth(hs *HealthService) HandlerOption {
	return func(h *Handler) {
		h.health = hs
	}
}

// WithGatherer sets the Prometheus gatherer served on /metrics.
func WithGatherer(g prometheus.Gatherer) HandlerOption {
	return func(h *Handler) {
		h.gatherer = g
	}
}

// WithActorExtractor sets a custom function to extract the actor id from a request.
func WithActorExtractor(fn func(*http.Request) (int64, bool)) HandlerOption {
	return func(h *Handler) {
		h.getActorID = fn
	}
}

// WithErrorHandler sets a custom error handler.
func WithErrorHandler(fn func(http.ResponseWriter, *http.Request, error)) HandlerOption {
	return func(h *Handler) {
		h.errorHandler = fn
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func defaultGetActorID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.Header.Get(ActorHeader), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// StatusCode maps an error of the modkit taxonomy to an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrCommandNotFound), errors.Is(err, ErrActionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrNotModified):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidRole), errors.Is(err, ErrNotAllowed):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = ErrInternal.Error()
	}
	writeJSON(w, status, map[string]any{
		"error":     msg,
		"retryable": IsRetryable(err),
	})
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler(w, r, NewError(ErrInvalidRequest, "malformed request body").WithCause(err))
		return
	}
	actorID, ok := h.getActorID(r)
	if !ok {
		h.errorHandler(w, r, NewError(ErrForbidden, "missing actor"))
		return
	}
	req.ActorID = actorID

	ctx := r.Context()
	if id := r.Header.Get("X-Request-ID"); id != "" {
		ctx = WithRequestID(ctx, id)
	}
	res, err := h.service.Dispatch(ctx, req)
	if err != nil {
		h.errorHandler(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	report := h.health.Health(r.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
