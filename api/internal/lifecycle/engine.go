package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"facility-compliance-system/shared/logx"
	"facility-compliance-system/shared/metricsx"
)

var tracer = otel.Tracer("lifecycle")

type Options struct {
	Repos    Repositories
	Clock    Clock
	Notifier Notifier
	Locker   Locker
	Cache    JSONCache
	Logger   logx.Logger
	NewID    func() string

	ApproachingWindow time.Duration
	SummaryCacheTTL   time.Duration
	// EscalationUserID receives high severity alerts and equipment faults.
	EscalationUserID string
}

// Engine runs lifecycle commands: load, validate, compute, save, then notify.
type Engine struct {
	repos      Repositories
	clock      Clock
	notifier   Notifier
	locker     Locker
	cache      JSONCache
	logger     logx.Logger
	newID      func() string
	window     time.Duration
	summaryTTL time.Duration
	escalation string
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		repos:      opts.Repos,
		clock:      opts.Clock,
		notifier:   opts.Notifier,
		locker:     opts.Locker,
		cache:      opts.Cache,
		logger:     opts.Logger.With(slog.String("component", "lifecycle")),
		newID:      opts.NewID,
		window:     opts.ApproachingWindow,
		summaryTTL: opts.SummaryCacheTTL,
		escalation: strings.TrimSpace(opts.EscalationUserID),
	}
	if e.clock == nil {
		e.clock = SystemClock{}
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	if e.window <= 0 {
		e.window = DefaultApproachingWindow
	}
	if e.summaryTTL <= 0 {
		e.summaryTTL = time.Minute
	}
	return e
}

func (e *Engine) Now() time.Time { return e.clock.Now() }

func (e *Engine) ApproachingWindow() time.Duration { return e.window }

// mutate is the single read-modify-write path. apply may ask for the returned entity to be
// stored even when it also returns an error (a permit found expired is saved as expired).
func mutate[T any](
	ctx context.Context,
	e *Engine,
	entity string,
	id string,
	command string,
	load func(context.Context, string) (T, error),
	apply func(cur T, now time.Time) (next T, persist bool, err error),
	save func(context.Context, T) (T, error),
) (T, error) {
	var zero T
	ctx, span := tracer.Start(ctx, entity+"."+command)
	span.SetAttributes(attribute.String("entity.type", entity), attribute.String("entity.id", id))
	defer span.End()

	finish := func(saved T, err error) (T, error) {
		e.observe(ctx, entity, id, command, err)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		return saved, err
	}

	if strings.TrimSpace(id) == "" {
		return finish(zero, Validation(entity, FieldError{Field: "id", Message: "is required"}))
	}

	unlock, err := e.lock(ctx, entity, id)
	if err != nil {
		return finish(zero, err)
	}
	defer unlock()

	cur, err := load(ctx, id)
	if err != nil {
		return finish(zero, err)
	}
	next, persist, applyErr := apply(cur, e.clock.Now())
	if applyErr != nil && !persist {
		return finish(zero, applyErr)
	}
	saved, err := save(ctx, next)
	if err != nil {
		return finish(zero, err)
	}
	e.invalidateSummary(ctx)
	return finish(saved, applyErr)
}

func (e *Engine) lock(ctx context.Context, entity string, id string) (func(), error) {
	if e.locker == nil {
		return func() {}, nil
	}
	unlock, acquired, err := e.locker.TryLock(ctx, "lifecycle:"+entity+":"+id)
	if err != nil {
		return nil, fmt.Errorf("acquire %s lock: %w", entity, err)
	}
	if !acquired {
		metricsx.IncLockConflict(entity)
		return nil, ConcurrentModification(entity, id, errors.New("another writer holds the entity lock"))
	}
	return func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn(ctx, "lock_release_failed", "entity lock release failed",
				slog.String("entity", entity),
				slog.String("entity_id", id),
				slog.String("error", err.Error()),
			)
		}
	}, nil
}

func (e *Engine) observe(ctx context.Context, entity string, id string, command string, err error) {
	outcome := outcomeOf(err)
	metricsx.ObserveTransition(entity, command, outcome)

	attrs := []slog.Attr{
		slog.String("entity", entity),
		slog.String("entity_id", id),
		slog.String("command", command),
		slog.String("outcome", outcome),
	}
	switch {
	case err == nil:
		e.logger.Info(ctx, "lifecycle_transition", "lifecycle command applied", attrs...)
	case outcome == "error":
		e.logger.Error(ctx, "lifecycle_failed", "lifecycle command failed", append(attrs, slog.String("error", err.Error()))...)
	default:
		e.logger.Info(ctx, "lifecycle_rejected", "lifecycle command rejected", append(attrs, slog.String("error", err.Error()))...)
	}
}

// notify never fails the caller; errors are counted and logged.
func (e *Engine) notify(ctx context.Context, n NotificationRecord) {
	if e.notifier == nil || strings.TrimSpace(n.UserID) == "" {
		return
	}
	if n.Priority == "" {
		n.Priority = NotifyNormal
	}
	if err := e.notifier.Create(ctx, n); err != nil {
		metricsx.IncNotificationFailure(n.Type)
		e.logger.Warn(ctx, "notification_failed", "notification create failed",
			slog.String("user_id", n.UserID),
			slog.String("type", n.Type),
			slog.String("related_entity_id", n.RelatedEntityID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) nextDueDate(ctx context.Context, frequency string, last time.Time, entity string, id string) time.Time {
	next, known := NextDueDate(frequency, last)
	if !known && strings.TrimSpace(frequency) != "" {
		e.logger.Warn(ctx, "frequency_fallback", "unrecognised frequency, scheduling one year out",
			slog.String("frequency", frequency),
			slog.String("entity", entity),
			slog.String("entity_id", id),
		)
	}
	return next
}

func (e *Engine) create(ctx context.Context, entity string, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, entity+".create")
	defer span.End()
	err := fn(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	} else {
		e.invalidateSummary(ctx)
	}
	metricsx.ObserveTransition(entity, "create", outcomeOf(err))
	return err
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if k := KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
