package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domainauth "github.com/NordCoder/Crabiner/internal/domain/auth"
	"github.com/NordCoder/Crabiner/internal/domain/outbox"
	"github.com/NordCoder/Crabiner/internal/obs"
	"go.uber.org/zap"
)

// LogAuditor writes events to the structured log.
type LogAuditor struct {
	log *zap.Logger
}

func NewLogAuditor(log *zap.Logger) *LogAuditor {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogAuditor{log: log.With(zap.String("component", "audit"))}
}

func (a *LogAuditor) Record(ctx context.Context, ev domainauth.Event) error {
	fields := []zap.Field{
		zap.String("event", string(ev.Kind)),
		zap.String("subject", ev.SubjectID),
		zap.String("reason", ev.Reason),
		zap.String("ip", ev.Client.IP),
	}
	if ev.CredentialID != nil {
		fields = append(fields, zap.Stringer("credential", ev.CredentialID))
	}
	if ev.Count > 0 {
		fields = append(fields, zap.Int64("count", ev.Count))
	}
	obs.WithTrace(ctx, a.log).Info("auth event", fields...)
	return nil
}

// OutboxAuditor stores events in the transactional outbox for relay to Kafka.
type OutboxAuditor struct {
	repo outbox.Repository
}

func NewOutboxAuditor(repo outbox.Repository) *OutboxAuditor {
	return &OutboxAuditor{repo: repo}
}

func (a *OutboxAuditor) Record(ctx context.Context, ev domainauth.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal auth event: %w", err)
	}
	return a.repo.Enqueue(ctx, ev.ID.String(), outbox.KindAuthEvent, data)
}

// Multi fans an event out to every auditor and joins their errors.
type Multi []domainauth.Auditor

func (m Multi) Record(ctx context.Context, ev domainauth.Event) error {
	var errs []error
	for _, a := range m {
		if err := a.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
