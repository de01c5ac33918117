package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"civicdesk/internal/complaint/models"
	"civicdesk/internal/complaint/service"
	"civicdesk/internal/platform/middleware"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/httputil"
	"civicdesk/pkg/requestcontext"
)

// Service defines the complaint operations exposed over HTTP.
type Service interface {
	Submit(ctx context.Context, sub service.Submission) (*service.SubmitResult, error)
	Get(ctx context.Context, complaintID id.ComplaintID) (*models.Complaint, error)
	Transition(ctx context.Context, req service.TransitionRequest) (*models.Complaint, error)
	ListLogs(ctx context.Context, complaintID id.ComplaintID) ([]*models.LogEntry, error)
}

// Handler handles complaint endpoints.
type Handler struct {
	logger     *slog.Logger
	complaint  Service
	submitGate []func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithSubmitMiddleware runs mw on POST /complaints only, after the actor
// has been resolved.
func WithSubmitMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.submitGate = append(h.submitGate, mw...)
	}
}

func New(complaint Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{logger: logger, complaint: complaint}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the complaint routes with the chi router. Every route
// requires the X-Actor-ID header.
func (h *Handler) Register(r chi.Router) {
	r.Route("/complaints", func(cr chi.Router) {
		cr.Use(middleware.ContentTypeJSON)
		cr.Use(middleware.RequireActor(h.logger))
		cr.With(h.submitGate...).Post("/", h.handleSubmit)
		cr.Get("/{id}", h.handleGet)
		cr.Post("/{id}/transitions", h.handleTransition)
		cr.Get("/{id}/logs", h.handleListLogs)
	})
}

type submitRequest struct {
	TypeID      string `json:"type_id"`
	Description string `json:"description"`
}

func (r *submitRequest) Validate() error {
	if strings.TrimSpace(r.TypeID) == "" {
		return dErrors.New(dErrors.CodeMalformed, "type_id is required")
	}
	if strings.TrimSpace(r.Description) == "" {
		return dErrors.New(dErrors.CodeMalformed, "description is required")
	}
	return nil
}

type transitionRequest struct {
	To        string `json:"to"`
	Note      string `json:"note"`
	UnitID    string `json:"unit_id"`
	MergeInto string `json:"merge_into"`

	status    models.Status
	mergeInto *id.ComplaintID
}

func (r *transitionRequest) Validate() error {
	status, err := models.ParseStatus(strings.ToLower(strings.TrimSpace(r.To)))
	if err != nil {
		return err
	}
	r.status = status
	if strings.TrimSpace(r.MergeInto) != "" {
		target, err := id.ParseComplaintID(strings.TrimSpace(r.MergeInto))
		if err != nil {
			return err
		}
		r.mergeInto = &target
	}
	return nil
}

type logsResponse struct {
	ComplaintID id.ComplaintID     `json:"complaint_id"`
	Entries     []*models.LogEntry `json:"entries"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[submitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.complaint.Submit(ctx, service.Submission{
		SubmitterID: requestcontext.ActorID(ctx),
		TypeID:      req.TypeID,
		Description: req.Description,
	})
	if err != nil {
		h.writeServiceError(ctx, w, err, "submit complaint failed")
		return
	}

	status := http.StatusCreated
	if res.Merged {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, res)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	complaintID, ok := h.pathComplaintID(w, r)
	if !ok {
		return
	}
	c, err := h.complaint.Get(ctx, complaintID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "get complaint failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	complaintID, ok := h.pathComplaintID(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[transitionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	c, err := h.complaint.Transition(ctx, service.TransitionRequest{
		ComplaintID: complaintID,
		To:          req.status,
		ActorID:     requestcontext.ActorID(ctx),
		Note:        req.Note,
		UnitID:      req.UnitID,
		MergeInto:   req.mergeInto,
	})
	if err != nil {
		h.writeServiceError(ctx, w, err, "transition complaint failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleListLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	complaintID, ok := h.pathComplaintID(w, r)
	if !ok {
		return
	}
	entries, err := h.complaint.ListLogs(ctx, complaintID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "list complaint logs failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, logsResponse{ComplaintID: complaintID, Entries: entries})
}

func (h *Handler) pathComplaintID(w http.ResponseWriter, r *http.Request) (id.ComplaintID, bool) {
	complaintID, err := id.ParseComplaintID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.ComplaintID{}, false
	}
	return complaintID, true
}

// writeServiceError logs server-side failures at error level and caller
// mistakes at warn level, then writes the envelope.
func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	code := dErrors.CodeInternal
	if de, ok := dErrors.As(err); ok {
		code = de.Code
	}
	status := dErrors.ToHTTPStatus(code)
	if h.logger != nil {
		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		h.logger.Log(ctx, level, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error_code", string(code),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
