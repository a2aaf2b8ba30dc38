package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"datavant-style-exchange/datalake/internal/config"
	"datavant-style-exchange/datalake/internal/datalake"
	"datavant-style-exchange/datalake/internal/fhir"
)

const (
	maxBodyBytes   int64 = 32 << 20
	minCorrelation int   = 8
)

type Publisher interface {
	PublishResources(ctx context.Context, tenantID string, resources []fhir.Resource) error
	PublishBinaries(ctx context.Context, tenantID string, binaries []*fhir.Binary) error
	PublishRaw(ctx context.Context, tenantID, data, sourceURL string) (string, error)
}

type Retriever interface {
	RetrieveBinaries(ctx context.Context, urls []string) (map[string]*fhir.Binary, error)
	RetrieveBinaryByID(ctx context.Context, tenantID, resourceID string) (*fhir.Binary, error)
	ObjectExists(ctx context.Context, url string) (bool, error)
	BinaryExists(ctx context.Context, tenantID, resourceID string) (bool, error)
	RetrieveReference(ctx context.Context, name string) ([]byte, error)
}

type Handler struct {
	cfg       config.Config
	logger    *slog.Logger
	publisher Publisher
	retriever Retriever
}

func New(cfg config.Config, logger *slog.Logger, publisher Publisher, retriever Retriever) *Handler {
	return &Handler{
		cfg:       cfg,
		logger:    logger,
		publisher: publisher,
		retriever: retriever,
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type rawRequest struct {
	URL  string `json:"url"`
	Data string `json:"data"`
}

type rawResponse struct {
	URL string `json:"url"`
}

type lookupRequest struct {
	URLs []string `json:"urls"`
}

type lookupResponse struct {
	Binaries map[string]*fhir.Binary `json:"binaries"`
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

func (h *Handler) PublishResources(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	var raw []*fhir.RawResource
	if err := json.Unmarshal(body, &raw); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid payload: expected an array of FHIR resources")
		return
	}
	resources := make([]fhir.Resource, 0, len(raw))
	for _, resource := range raw {
		if resource == nil {
			h.respondError(w, http.StatusBadRequest, "invalid payload: null resource")
			return
		}
		resources = append(resources, resource)
	}

	if err := h.publisher.PublishResources(r.Context(), tenantID, resources); err != nil {
		h.respondPublishError(w, r, tenantID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PublishBinaries(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	var binaries []*fhir.Binary
	if err := json.Unmarshal(body, &binaries); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid payload: expected an array of Binary resources")
		return
	}
	for _, binary := range binaries {
		if binary == nil || strings.TrimSpace(binary.ID) == "" {
			h.respondError(w, http.StatusBadRequest, "every Binary needs an id")
			return
		}
	}

	if err := h.publisher.PublishBinaries(r.Context(), tenantID, binaries); err != nil {
		h.respondPublishError(w, r, tenantID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PublishRaw(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	var req rawRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.URL == "" {
		h.respondError(w, http.StatusBadRequest, "missing url")
		return
	}

	url, err := h.publisher.PublishRaw(r.Context(), tenantID, req.Data, req.URL)
	if err != nil {
		h.respondPublishError(w, r, tenantID, err)
		return
	}
	writeJSON(w, http.StatusCreated, rawResponse{URL: url})
}

func (h *Handler) GetBinary(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	binary, err := h.retriever.RetrieveBinaryByID(r.Context(), tenantID, chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Error("failed to retrieve binary", "error", err, "tenant_id", tenantID, "correlation_id", correlationID(r))
		h.respondError(w, http.StatusBadGateway, "failed to read from datalake")
		return
	}
	if binary == nil {
		h.respondError(w, http.StatusNotFound, "binary not found")
		return
	}
	writeJSON(w, http.StatusOK, binary)
}

func (h *Handler) HeadBinary(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	exists, err := h.retriever.BinaryExists(r.Context(), tenantID, chi.URLParam(r, "id"))
	switch {
	case err != nil:
		h.logger.Error("failed to check binary", "error", err, "tenant_id", tenantID, "correlation_id", correlationID(r))
		w.WriteHeader(http.StatusBadGateway)
	case exists:
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) LookupBinaries(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	var req lookupRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	claims := claimsFrom(r.Context())
	for _, url := range req.URLs {
		if !h.urlInScope(claims, url, true) {
			h.respondError(w, http.StatusForbidden, "forbidden")
			return
		}
	}

	binaries, err := h.retriever.RetrieveBinaries(r.Context(), req.URLs)
	if err != nil {
		h.logger.Error("failed to look up binaries", "error", err, "count", len(req.URLs), "correlation_id", correlationID(r))
		h.respondError(w, http.StatusBadGateway, "failed to read from datalake")
		return
	}
	writeJSON(w, http.StatusOK, lookupResponse{Binaries: binaries})
}

func (h *Handler) ObjectExists(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		h.respondError(w, http.StatusBadRequest, "missing url")
		return
	}
	if !h.urlInScope(claimsFrom(r.Context()), url, false) {
		h.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	exists, err := h.retriever.ObjectExists(r.Context(), url)
	if err != nil {
		h.logger.Error("failed to check object", "error", err, "url", url, "correlation_id", correlationID(r))
		h.respondError(w, http.StatusBadGateway, "failed to read from datalake")
		return
	}
	writeJSON(w, http.StatusOK, existsResponse{Exists: exists})
}

func (h *Handler) GetReference(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if name == "" {
		h.respondError(w, http.StatusBadRequest, "missing reference name")
		return
	}

	data, err := h.retriever.RetrieveReference(r.Context(), name)
	if err != nil {
		h.logger.Error("failed to read reference data", "error", err, "name", name, "correlation_id", correlationID(r))
		h.respondError(w, http.StatusBadGateway, "failed to read from reference bucket")
		return
	}
	if data == nil {
		h.respondError(w, http.StatusNotFound, "reference not found")
		return
	}
	writeJSONBytes(w, http.StatusOK, data)
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	bodyReader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer bodyReader.Close()
	body, err := io.ReadAll(bodyReader)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid body")
		return nil, false
	}
	return body, true
}

func (h *Handler) respondPublishError(w http.ResponseWriter, r *http.Request, tenantID string, err error) {
	h.logger.Error("datalake publish failed", "error", err, "tenant_id", tenantID, "correlation_id", correlationID(r))
	switch {
	case errors.Is(err, datalake.ErrWriteFailed):
		h.respondError(w, http.StatusBadGateway, "one or more writes to datalake failed")
	case errors.Is(err, datalake.ErrMissingResourceID):
		h.respondError(w, http.StatusUnprocessableEntity, "some resources lacked FHIR ids and were not published")
	default:
		h.respondError(w, http.StatusInternalServerError, "failed to publish")
	}
}

func correlationID(r *http.Request) string {
	id := r.Header.Get("X-Correlation-Id")
	if len(id) < minCorrelation {
		return uuid.NewString()
	}
	return id
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	payload, err := json.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSONBytes(w, status, payload)
}

func writeJSONBytes(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	response := map[string]string{"error": message}
	writeJSON(w, status, response)
}
