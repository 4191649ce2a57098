package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cognicore/studyindex/pkg/studyindex/tablestore"
)

// CatalogWriter is the curation surface of *catalog.Catalog.
type CatalogWriter interface {
	AddClient(ctx context.Context, client, code string, overwrite bool) (tablestore.WriteOutcome, error)
	AddMethod(ctx context.Context, method, code string, overwrite bool) (tablestore.WriteOutcome, error)
	Save(ctx context.Context) error
}

// CatalogHandler serves POST /catalog/clients and POST /catalog/methods.
type CatalogHandler struct {
	catalog CatalogWriter
	logger  *zap.Logger
}

func NewCatalogHandler(c CatalogWriter) *CatalogHandler {
	return &CatalogHandler{catalog: c, logger: zap.NewNop()}
}

// RegisterRoutes registers the routes for this handler
func (h *CatalogHandler) RegisterRoutes(router *mux.Router, logger *zap.Logger) {
	h.logger = logger
	router.HandleFunc("/catalog/clients", h.add("client", h.catalog.AddClient)).Methods(http.MethodPost)
	router.HandleFunc("/catalog/methods", h.add("method", h.catalog.AddMethod)).Methods(http.MethodPost)
}

type addRequest struct {
	Client    string `json:"client"`
	Method    string `json:"method"`
	Code      string `json:"code"`
	Overwrite bool   `json:"overwrite"`
}

type addResponse struct {
	Outcome string `json:"outcome"`
}

type addFunc func(ctx context.Context, name, code string, overwrite bool) (tablestore.WriteOutcome, error)

func (h *CatalogHandler) add(kind string, fn addFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		name := req.Client
		if kind == "method" {
			name = req.Method
		}
		name, code := strings.TrimSpace(name), strings.TrimSpace(req.Code)
		if name == "" || code == "" {
			writeError(w, http.StatusBadRequest, kind+" and code are required")
			return
		}

		outcome, err := fn(r.Context(), name, code, req.Overwrite)
		if err != nil {
			h.logger.Error("catalog write failed", zap.String("kind", kind), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "write failed")
			return
		}
		status := http.StatusOK
		switch outcome {
		case tablestore.Inserted:
			status = http.StatusCreated
		case tablestore.AlreadyExists, tablestore.Ambiguous:
			writeJSON(w, http.StatusConflict, addResponse{Outcome: outcome.String()})
			return
		}
		if err := h.catalog.Save(r.Context()); err != nil {
			h.logger.Error("catalog save failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "save failed")
			return
		}
		h.logger.Info("catalog entry added",
			zap.String("kind", kind), zap.String("name", name), zap.String("code", code))
		writeJSON(w, status, addResponse{Outcome: outcome.String()})
	}
}
