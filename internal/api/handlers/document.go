package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopmind-ai/shopmind/internal/api"
	"github.com/shopmind-ai/shopmind/internal/api/middleware"
	"github.com/shopmind-ai/shopmind/internal/service"
)

// DocumentAPI is the document upload and ingestion surface.
type DocumentAPI interface {
	InitUpload(ctx context.Context, ownerID, filename, contentType string) (*service.UploadTicket, error)
	Ingest(ctx context.Context, ownerID, key string, topics []string) (*service.IngestResult, error)
}

type DocumentHandler struct {
	svc DocumentAPI
}

func NewDocumentHandler(svc DocumentAPI) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type InitUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// InitUpload returns a presigned URL for uploading a document.
func (h *DocumentHandler) InitUpload(w http.ResponseWriter, r *http.Request) {
	var req InitUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Filename) == "" {
		api.Error(w, http.StatusBadRequest, "filename is required")
		return
	}
	if req.ContentType == "" {
		req.ContentType = "text/plain"
	}

	ticket, err := h.svc.InitUpload(r.Context(), middleware.GetOwnerID(r.Context()), req.Filename, req.ContentType)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, ticket)
}

type IngestRequest struct {
	Key    string   `json:"key"`
	Topics []string `json:"topics,omitempty"`
}

// Ingest chunks and embeds an uploaded document into the shopper's
// knowledge store.
func (h *DocumentHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Key) == "" {
		api.Error(w, http.StatusBadRequest, "key is required")
		return
	}

	result, err := h.svc.Ingest(r.Context(), middleware.GetOwnerID(r.Context()), req.Key, req.Topics)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, result)
}
