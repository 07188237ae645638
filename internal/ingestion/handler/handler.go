package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/scriptura/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/logger"
)

const defaultMaxUpload = 64 << 20

// WorkReader serves the read-only catalog endpoints.
type WorkReader interface {
	Get(ctx context.Context, id int64) (*catalog.Work, error)
	List(ctx context.Context, f catalog.Filter) ([]catalog.Work, error)
}

type Handler struct {
	publisher *publisher.Publisher
	works     WorkReader
	maxUpload int64
	logger    *slog.Logger
}

func New(pub *publisher.Publisher, works WorkReader, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &Handler{
		publisher: pub,
		works:     works,
		maxUpload: maxUpload,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/works", h.Upload)
	mux.HandleFunc("GET /api/v1/works", h.List)
	mux.HandleFunc("GET /api/v1/works/{id}", h.Get)
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "a PDF file is required in the \"file\" field")
		return
	}
	defer file.Close()
	if !validator.IsPDF(header.Filename) {
		h.writeError(w, http.StatusBadRequest, "only .pdf files are accepted")
		return
	}

	req := ingestion.UploadRequest{
		Title:    r.FormValue("title"),
		Author:   r.FormValue("author"),
		Genre:    r.FormValue("genre"),
		Movement: r.FormValue("movement"),
		FileName: header.Filename,
	}
	if raw := strings.TrimSpace(r.FormValue("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": map[string]string{"year": "year must be an integer"},
			})
			return
		}
		req.Year = &year
	}
	if err := validator.ValidateUpload(&req); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.publisher.Ingest(ctx, &req, file)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed",
			"title", req.Title,
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, apperrors.Message(err))
		return
	}
	log.Info("work ingested",
		"work_id", resp.WorkID,
		"title", resp.Title,
		"status", resp.Status,
	)
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := catalog.Filter{
		Author:   q.Get("author"),
		Genre:    q.Get("genre"),
		Movement: q.Get("movement"),
	}
	if raw := q.Get("status"); raw != "" {
		st, err := catalog.ParseStatus(strings.ToUpper(raw))
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Status = st
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = limit
	}
	works, err := h.works.List(r.Context(), f)
	if err != nil {
		h.logger.Error("listing works failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), apperrors.Message(err))
		return
	}
	if works == nil {
		works = []catalog.Work{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"works": works, "count": len(works)})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "work id must be an integer")
		return
	}
	work, err := h.works.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), apperrors.Message(err))
		return
	}
	h.writeJSON(w, http.StatusOK, work)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
