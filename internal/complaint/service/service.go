// Package service is the complaint pipeline: validation, screening,
// deduplication, routing and the lifecycle state machine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"civicdesk/internal/complaint/dedupe"
	"civicdesk/internal/complaint/metrics"
	"civicdesk/internal/complaint/models"
	"civicdesk/internal/platform/lock"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/platform/sentinel"
	"civicdesk/pkg/requestcontext"
)

var tracer = otel.Tracer("civicdesk/complaint")

// Default moderation bands.
const (
	DefaultRejectThreshold = 3.0
	DefaultFlagThreshold   = 1.0
)

// Audit events.
const (
	EventComplaintSubmitted    = "complaint_submitted"
	EventComplaintDuplicate    = "complaint_duplicate_merged"
	EventComplaintRejected     = "complaint_rejected"
	EventComplaintTransitioned = "complaint_transitioned"
)

// Config carries the tunables of the pipeline.
type Config struct {
	RejectThreshold float64
	FlagThreshold   float64
	RetryAttempts   int
	// NotifyOn lists target statuses that trigger the notifier.
	NotifyOn []models.Status
}

// Service orchestrates the complaint pipeline.
type Service struct {
	complaints   ComplaintStore
	logs         LogStore
	tx           StoreTx
	catalog      Catalog
	screener     Screener
	machine      *Machine
	index        *dedupe.Index
	locker       lock.Locker
	fingerprints *dedupe.Fingerprinter

	cfg      Config
	notifyOn map[models.Status]struct{}
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithLocker replaces the in-process exclusive sections, e.g. with Redis locks.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

func WithFingerprinter(f *dedupe.Fingerprinter) Option {
	return func(s *Service) {
		s.fingerprints = f
	}
}

func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.cfg = cfg
	}
}

// New constructs a Service.
func New(
	complaints ComplaintStore,
	logs LogStore,
	tx StoreTx,
	catalog Catalog,
	screener Screener,
	router Router,
	opts ...Option,
) *Service {
	s := &Service{
		complaints: complaints,
		logs:       logs,
		tx:         tx,
		catalog:    catalog,
		screener:   screener,
		machine:    NewMachine(complaints, logs, router),
		cfg: Config{
			RejectThreshold: DefaultRejectThreshold,
			FlagThreshold:   DefaultFlagThreshold,
			RetryAttempts:   defaultRetryAttempts,
			NotifyOn:        []models.Status{models.StatusResolved, models.StatusRejected},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = lock.NewMemory()
	}
	if s.fingerprints == nil {
		s.fingerprints = dedupe.NewFingerprinter(dedupe.DefaultBucket)
	}
	s.index = dedupe.NewIndex(complaints, s.locker)
	s.notifyOn = make(map[models.Status]struct{}, len(s.cfg.NotifyOn))
	for _, st := range s.cfg.NotifyOn {
		s.notifyOn[st] = struct{}{}
	}
	return s
}

// SubmitResult is the outcome of Submit. Merged is true when the submission
// was folded into an existing open complaint.
type SubmitResult struct {
	ComplaintID id.ComplaintID `json:"complaint_id"`
	Merged      bool           `json:"merged"`
}

// Submit validates, screens and deduplicates sub, then creates a complaint
// or notes the duplicate on the open one. Nothing is persisted on failure.
func (s *Service) Submit(ctx context.Context, sub Submission) (*SubmitResult, error) {
	start := time.Now()
	defer s.observeSubmit(start)
	ctx, span := tracer.Start(ctx, "complaint.Submit")
	defer span.End()

	sub.Normalize()
	if err := sub.Validate(); err != nil {
		return nil, s.submitFailed(ctx, span, err)
	}
	if _, ok := s.catalog.Snapshot().Type(sub.TypeID); !ok {
		return nil, s.submitFailed(ctx, span, dErrors.New(dErrors.CodeUnknownType, fmt.Sprintf("unknown complaint type %q", sub.TypeID)))
	}
	mod, err := s.moderate(span, sub.Description)
	if err != nil {
		return nil, s.submitFailed(ctx, span, err)
	}

	now := requestcontext.Now(ctx).UTC()
	intake := Intake{
		SubmitterID: sub.SubmitterID,
		TypeID:      sub.TypeID,
		Description: sub.Description,
		Fingerprint: s.fingerprints.Compute(sub.SubmitterID, sub.TypeID, sub.Description, now),
		Moderation:  mod,
	}
	span.SetAttributes(attribute.String("complaint.type", sub.TypeID), attribute.Bool("complaint.needs_review", mod.NeedsReview))

	var result *SubmitResult
	err = retry(ctx, s.cfg.RetryAttempts, func() error {
		var err error
		result, err = s.submitOnce(ctx, intake, now)
		return err
	})
	if err != nil {
		return nil, s.submitFailed(ctx, span, err)
	}

	span.SetAttributes(attribute.String("complaint.id", result.ComplaintID.String()), attribute.Bool("complaint.merged", result.Merged))
	if result.Merged {
		s.incrementSubmission(metrics.OutcomeMerged)
		s.logAudit(ctx, EventComplaintDuplicate,
			"complaint_id", result.ComplaintID.String(),
			"submitter_id", sub.SubmitterID.String())
	} else {
		s.incrementSubmission(metrics.OutcomeCreated)
		s.logAudit(ctx, EventComplaintSubmitted,
			"complaint_id", result.ComplaintID.String(),
			"submitter_id", sub.SubmitterID.String(),
			"type_id", sub.TypeID,
			"needs_review", mod.NeedsReview)
	}
	return result, nil
}

// submitOnce is one attempt under the fingerprint section. A duplicate hit
// additionally enters the existing complaint's section so the note records
// its current status.
func (s *Service) submitOnce(ctx context.Context, in Intake, now time.Time) (*SubmitResult, error) {
	unlock, err := s.index.Lock(ctx, in.Fingerprint)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, found, err := s.index.FindOpen(ctx, in.Fingerprint)
	if err != nil {
		return nil, err
	}
	if found {
		unlockComplaint, err := s.locker.Lock(ctx, complaintLockKey(existing))
		if err != nil {
			return nil, err
		}
		defer unlockComplaint()
		err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			_, err := s.machine.Annotate(txCtx, existing, models.LogKindDuplicate, in.SubmitterID, "duplicate submission merged", now)
			return err
		})
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				// Vanished under us; treat as a lost race.
				return nil, fmt.Errorf("duplicate target %s: %w", existing, sentinel.ErrConflict)
			}
			return nil, err
		}
		return &SubmitResult{ComplaintID: existing, Merged: true}, nil
	}

	var created *models.Complaint
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		created, err = s.machine.Create(txCtx, in, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &SubmitResult{ComplaintID: created.ID}, nil
}

// moderate screens text and applies the reject and flag bands. Both bands
// are exclusive: a severity equal to a threshold stays below it.
func (s *Service) moderate(span trace.Span, text string) (models.Moderation, error) {
	res, err := s.screener.Screen(text)
	if err != nil {
		return models.Moderation{}, err
	}
	span.SetAttributes(attribute.Int("moderation.matches", res.Matches), attribute.Float64("moderation.severity", res.Severity))
	s.addProfanityMatches(res.Matches)
	if res.Severity > s.cfg.RejectThreshold {
		return models.Moderation{}, dErrors.New(dErrors.CodeProfanityRejected, "description violates content policy")
	}
	return models.Moderation{
		HasProfanity: res.HasProfanity,
		Severity:     res.Severity,
		Sentiment:    res.Sentiment,
		NeedsReview:  res.Severity > s.cfg.FlagThreshold,
	}, nil
}

// Get returns the current complaint record.
func (s *Service) Get(ctx context.Context, complaintID id.ComplaintID) (*models.Complaint, error) {
	c, err := s.complaints.FindByID(ctx, complaintID)
	if err != nil {
		return nil, s.mapStoreError(err, "complaint not found", "failed to load complaint")
	}
	return c, nil
}

// Transition moves a complaint along the lifecycle. Transitions on one
// complaint are serialized; a merge also serializes against its target.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (*models.Complaint, error) {
	start := time.Now()
	defer s.observeTransition(start)
	ctx, span := tracer.Start(ctx, "complaint.Transition")
	defer span.End()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, s.transitionFailed(span, err)
	}
	span.SetAttributes(attribute.String("complaint.id", req.ComplaintID.String()), attribute.String("complaint.to", string(req.To)))

	keys := []string{complaintLockKey(req.ComplaintID)}
	if req.MergeInto != nil && !req.MergeInto.IsNil() {
		keys = append(keys, complaintLockKey(*req.MergeInto))
	}

	now := requestcontext.Now(ctx).UTC()
	var (
		updated *models.Complaint
		from    models.Status
	)
	err := retry(ctx, s.cfg.RetryAttempts, func() error {
		unlock, err := lock.All(ctx, s.locker, keys...)
		if err != nil {
			return err
		}
		defer unlock()
		return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			var err error
			updated, from, err = s.machine.Transition(txCtx, req, now)
			return err
		})
	})
	if err != nil {
		return nil, s.transitionFailed(span, err)
	}

	s.incrementTransition(updated.Status)
	s.logAudit(ctx, EventComplaintTransitioned,
		"complaint_id", updated.ID.String(),
		"actor_id", req.ActorID.String(),
		"from", string(from),
		"to", string(updated.Status),
		"assigned_unit", updated.AssignedUnit)
	s.notify(ctx, models.NewStatusChanged(updated, from, req.ActorID, req.Note))
	return updated, nil
}

// ListLogs returns the complaint's log, oldest first.
func (s *Service) ListLogs(ctx context.Context, complaintID id.ComplaintID) ([]*models.LogEntry, error) {
	if _, err := s.complaints.FindByID(ctx, complaintID); err != nil {
		return nil, s.mapStoreError(err, "complaint not found", "failed to load complaint")
	}
	entries, err := s.logs.ListByComplaint(ctx, complaintID)
	if err != nil {
		return nil, s.mapStoreError(err, "complaint not found", "failed to list complaint logs")
	}
	return entries, nil
}

// notify runs after commit. Failures are logged and counted only.
func (s *Service) notify(ctx context.Context, event models.StatusChanged) {
	if s.notifier == nil {
		return
	}
	if _, ok := s.notifyOn[event.To]; !ok {
		return
	}
	if err := s.notifier.NotifyStatusChanged(ctx, event); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "status change notification failed",
				"complaint_id", event.ComplaintID.String(),
				"to", string(event.To),
				"error", err)
		}
		if s.metrics != nil {
			s.metrics.IncrementNotifyFailed()
		}
	}
}

func (s *Service) mapStoreError(err error, notFoundMsg, internalMsg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	}
	if errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "store unavailable")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
}

func (s *Service) submitFailed(ctx context.Context, span trace.Span, err error) error {
	recordSpanError(span, err)
	if isRejection(err) {
		s.incrementSubmission(metrics.OutcomeRejected)
		code := ""
		if de, ok := dErrors.As(err); ok {
			code = string(de.Code)
		}
		s.logAudit(ctx, EventComplaintRejected, "reason", code)
		return err
	}
	s.incrementSubmission(metrics.OutcomeFailed)
	return err
}

func (s *Service) transitionFailed(span trace.Span, err error) error {
	recordSpanError(span, err)
	return err
}

// isRejection reports validation-category outcomes of a submission.
func isRejection(err error) bool {
	for _, code := range []dErrors.Code{
		dErrors.CodeMalformed,
		dErrors.CodeUnknownType,
		dErrors.CodeContentTooLarge,
		dErrors.CodeProfanityRejected,
		dErrors.CodeRoutingNotFound,
	} {
		if dErrors.HasCode(err, code) {
			return true
		}
	}
	return false
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func complaintLockKey(complaintID id.ComplaintID) string {
	return "complaint:" + complaintID.String()
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
}

func (s *Service) incrementSubmission(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementSubmission(outcome)
	}
}

func (s *Service) incrementTransition(to models.Status) {
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(to))
	}
}

func (s *Service) observeSubmit(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveSubmit(start)
	}
}

func (s *Service) observeTransition(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(start)
	}
}

func (s *Service) addProfanityMatches(n int) {
	if s.metrics != nil && n > 0 {
		s.metrics.AddProfanityMatches(n)
	}
}
