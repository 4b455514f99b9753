// Package filehandler exposes a storage coordinator over HTTP and provides a
// client for the resulting API.
package filehandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/danielkbx/multi-storage/api"
	"github.com/danielkbx/multi-storage/interfaces"
	"github.com/danielkbx/multi-storage/storage"
	"github.com/go-chi/chi/v5"
)

// Coordinator is the part of storage.MultiStorage the handler serves.
type Coordinator interface {
	Get(ctx context.Context, url string, encoding string) ([]byte, error)
	GetStream(ctx context.Context, url string) (*storage.ReadStream, error)
	PostStream(ctx context.Context, opts interfaces.WriteOptions) (*storage.Upload, error)
	Delete(ctx context.Context, url string) error
	Providers() []storage.ProviderEntry
}

// Handler processes HTTP requests for stored files.
type Handler struct {
	storage Coordinator
	log     *slog.Logger
}

// NewHandler creates a handler serving coordinator.
func NewHandler(coordinator Coordinator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		storage: coordinator,
		log:     log,
	}
}

// RegisterRoutes registers the following routes:
//   - POST /api/files - Store the request body on every provider
//   - GET /api/files - Read content by URL
//   - DELETE /api/files - Delete content by URL
//   - GET /api/providers - List providers
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/files", h.HandlePost)
	r.Get("/api/files", h.HandleGet)
	r.Delete("/api/files", h.HandleDelete)
	r.Get("/api/providers", h.HandleProviders)
}

// HandlePost streams the request body to every provider.
//
// URL format: POST /api/files?name={name}&path={path}&encoding={encoding}
//
// Response: JSON-encoded interfaces.WriteResult with status 201.
func (h *Handler) HandlePost(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	opts := interfaces.WriteOptions{
		Name:     query.Get("name"),
		Path:     query.Get("path"),
		Encoding: query.Get("encoding"),
	}

	upload, err := h.storage.PostStream(r.Context(), opts)
	if err != nil {
		h.writeError(w, "Failed to open upload", err)
		return
	}

	if _, err := io.Copy(upload, r.Body); err != nil {
		upload.Abort(err)
	} else {
		upload.Close()
	}

	result, err := upload.Wait(r.Context())
	if err != nil {
		h.writeError(w, "Failed to store content", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// HandleGet returns the content stored at a URL. Without an encoding the
// provider stream is passed through unchanged.
//
// URL format: GET /api/files?url={url}&encoding={encoding}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	contentURL := r.URL.Query().Get("url")
	if contentURL == "" {
		http.Error(w, "Missing url parameter", http.StatusBadRequest)
		return
	}

	encoding := r.URL.Query().Get("encoding")
	if encoding != "" && encoding != interfaces.BinaryEncoding {
		data, err := h.storage.Get(r.Context(), contentURL, encoding)
		if err != nil {
			h.writeError(w, "Failed to read content", err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write(data)
		return
	}

	stream, err := h.storage.GetStream(r.Context(), contentURL)
	if err != nil {
		h.writeError(w, "Failed to open content", err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := stream.PipeTo(w); err != nil {
		// Headers are already sent; the client sees a truncated body.
		h.log.Error("Failed to stream content", "err", err, "url", contentURL)
	}
}

// HandleDelete removes the content stored at a URL.
//
// URL format: DELETE /api/files?url={url}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	contentURL := r.URL.Query().Get("url")
	if contentURL == "" {
		http.Error(w, "Missing url parameter", http.StatusBadRequest)
		return
	}

	if err := h.storage.Delete(r.Context(), contentURL); err != nil {
		h.writeError(w, "Failed to delete content", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleProviders lists the admitted providers by descending priority.
func (h *Handler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	entries := h.storage.Providers()
	providers := make([]api.ProviderInfo, 0, len(entries))
	for _, entry := range entries {
		providers = append(providers, api.ProviderInfo{
			Name:     entry.Name(),
			Priority: entry.Priority,
			Schemes:  entry.Schemes(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(providers); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, msg string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.log.Error(msg, "err", err)
	} else {
		h.log.Debug(msg, "err", err)
	}
	http.Error(w, msg+": "+err.Error(), code)
}

// statusFor maps coordinator errors to HTTP status codes.
func statusFor(err error) int {
	var aggregate *interfaces.AggregateWriteError
	var providerErr *interfaces.ProviderError

	switch {
	case errors.Is(err, interfaces.ErrInvalidURL),
		errors.Is(err, interfaces.ErrInvalidScheme),
		errors.Is(err, interfaces.ErrUnsupportedEncoding):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrNoProviderForScheme),
		errors.Is(err, interfaces.ErrContentNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrNoProviders):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &aggregate),
		errors.Is(err, interfaces.ErrSinkCreationFailed),
		errors.As(err, &providerErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
