package kafka

import "context"

type AuthEvents interface {
	PublishAuthEvent(ctx context.Context, data []byte) error
}
