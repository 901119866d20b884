package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	domainauth "github.com/NordCoder/Crabiner/internal/domain/auth"
	domainkafka "github.com/NordCoder/Crabiner/internal/domain/kafka"
	"github.com/NordCoder/Crabiner/internal/obs/retry"
)

type AuthEventsKafka struct {
	p *Producer
}

func NewAuthEventsKafka(p *Producer) *AuthEventsKafka { return &AuthEventsKafka{p: p} }

var _ domainkafka.AuthEvents = (*AuthEventsKafka)(nil)

// PublishAuthEvent relays an already encoded event. Events of one subject share a
// partition so consumers see them in order.
func (e *AuthEventsKafka) PublishAuthEvent(ctx context.Context, data []byte) error {
	var ev domainauth.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return retry.Permanent(fmt.Errorf("decode auth event: %w", err))
	}
	return e.p.Publish(ctx, EventKey(ev), data)
}

func EventKey(ev domainauth.Event) []byte {
	if ev.SubjectID != "" {
		return []byte(ev.SubjectID)
	}
	return []byte(ev.ID.String())
}

// JSONHandler decodes message values into T before calling handle.
func JSONHandler[T any](handle func(ctx context.Context, key []byte, v T) error) Handler {
	return func(ctx context.Context, key, value []byte) error {
		var v T
		if err := json.Unmarshal(value, &v); err != nil {
			return err
		}
		return handle(ctx, key, v)
	}
}
