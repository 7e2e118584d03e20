package service

import (
	"context"
	"errors"
	"time"

	"certledger/internal/credential/events"
	"certledger/internal/credential/metrics"
	"certledger/internal/credential/models"
	"certledger/internal/credential/tracer"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/requestcontext"
)

var errCacheCircuitOpen = errors.New("cache circuit open; step skipped")

// cacheStep runs one advisory cache call under the cache timeout and breaker.
// A failure becomes a warning; the caller's outcome is unaffected.
func (s *Service) cacheStep(ctx context.Context, step string, certID models.CertID, fn func(ctx context.Context) error) *models.Warning {
	if !s.breaker.Allow() {
		return s.cacheWarning(ctx, step, certID, errCacheCircuitOpen)
	}

	ctx, span := s.tracer.Start(ctx, spanForStep(step), tracer.String(tracer.AttrCertID, certID.String()))
	cctx, cancel := context.WithTimeout(ctx, s.timeouts.Cache)
	err := fn(cctx)
	cancel()
	span.End(err)

	if err != nil {
		s.recordCacheFailure(ctx, err)
		return s.cacheWarning(ctx, step, certID, err)
	}
	s.recordCacheSuccess(ctx)
	return nil
}

func (s *Service) cacheWarning(ctx context.Context, step string, certID models.CertID, cause error) *models.Warning {
	s.logger.WarnContext(ctx, "advisory cache step failed",
		"step", step,
		"cert_id", certID.String(),
		"error", cause,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.RecordCacheWarning(step)
	}
	msg := cause.Error()
	if !errors.Is(cause, errCacheCircuitOpen) {
		msg = translateCacheError(cause).Error()
	}
	return &models.Warning{
		Code:    dErrors.CodeCacheUnavailable,
		Step:    step,
		Message: msg,
	}
}

func (s *Service) recordCacheFailure(ctx context.Context, err error) {
	_, change := s.breaker.RecordFailure()
	if change.Opened {
		s.logger.ErrorContext(ctx, "circuit breaker opened",
			"circuit", s.breaker.Name(),
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.SetCacheCircuitOpen(true)
		}
	}
}

func (s *Service) recordCacheSuccess(ctx context.Context) {
	_, change := s.breaker.RecordSuccess()
	if change.Closed {
		s.logger.InfoContext(ctx, "circuit breaker closed", "circuit", s.breaker.Name())
		if s.metrics != nil {
			s.metrics.SetCacheCircuitOpen(false)
		}
	}
}

func appendWarning(warnings []models.Warning, w *models.Warning) []models.Warning {
	if w == nil {
		return warnings
	}
	return append(warnings, *w)
}

// emit publishes a lifecycle event. Delivery failures are logged only.
func (s *Service) emit(ctx context.Context, span tracer.Span, event events.Event) {
	ectx, cancel := context.WithTimeout(ctx, s.timeouts.Events)
	defer cancel()
	if err := s.publisher.Emit(ectx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish certificate event",
			"type", string(event.Type),
			"cert_id", event.CertID.String(),
			"error", err,
		)
		return
	}
	span.AddEvent(tracer.EventPublished, tracer.String("type", string(event.Type)))
}

func (s *Service) observe(operation string, start time.Time, warnings int, err error) {
	if s.metrics == nil {
		return
	}
	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil:
		outcome = metrics.OutcomeFailure
	case warnings > 0:
		outcome = metrics.OutcomeWarning
	}
	s.metrics.ObserveOperation(operation, outcome, time.Since(start).Seconds())
}

func (s *Service) logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	attrs = append(attrs,
		"error", err,
		"code", string(dErrors.CodeOf(err)),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.logger.ErrorContext(ctx, msg, attrs...)
}

func spanForStep(step string) string {
	if step == models.StepCacheRead || step == models.StepCacheSubject {
		return tracer.SpanCacheRead
	}
	return tracer.SpanCacheWrite
}
