package exports

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	blobcore "ledgerql/internal/infra/blob/core"

	"go.uber.org/zap"
)

// Handler exposes export records and artifact downloads:
//
//	POST /api/v1/exports                  {"formats": ["csv", "json"]}
//	GET  /api/v1/exports/{id}
//	GET  /api/v1/exports/{id}/{format}
type Handler struct {
	worker *Worker
	logger *zap.Logger
	mux    *http.ServeMux
}

// NewHandler mounts the routes under DefaultDownloadBase.
func NewHandler(worker *Worker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{worker: worker, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST "+DefaultDownloadBase, h.create)
	h.mux.HandleFunc("GET "+DefaultDownloadBase+"/{id}", h.get)
	h.mux.HandleFunc("GET "+DefaultDownloadBase+"/{id}/{format}", h.download)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type createRequest struct {
	Formats []string `json:"formats"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid export request payload")
			return
		}
	}
	record, err := h.worker.Enqueue(r.Context(), req.Formats)
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	record, ok := h.worker.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": record})
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	artifact, body, err := h.worker.Open(r.Context(), id, Format(r.PathValue("format")))
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, blobcore.ErrNotFound):
		writeError(w, http.StatusNotFound, "export artifact not found")
		return
	case err != nil:
		h.logger.Error("open export artifact", zap.String("export_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "artifact unavailable")
		return
	}
	defer body.Close()
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(artifact.SizeBytes, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="ledger-`+id+"."+string(artifact.Format)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("stream export artifact", zap.String("export_id", id), zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
