package retry

import (
	"time"

	"go.uber.org/zap"
)

// RelayPolicy retries broker writes for one outbox message. A message that
// keeps failing stays in the outbox and is picked again after its lease expires.
func RelayPolicy(log *zap.Logger, kind string) Policy {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("kind", kind))
	return Policy{
		Name:     "outbox_" + kind,
		Attempts: 6,
		Backoff:  ExpoJitter{Base: 200 * time.Millisecond, Max: 30 * time.Second, Jitter: 0.2},
		OnAttempt: func(i int, err error) {
			log.Warn("outbox relay retry", zap.Int("attempt", i+1), zap.Error(err))
		},
		OnExhaust: func(err error) {
			if IsPermanent(err) {
				log.Error("outbox message rejected", zap.Error(err))
				return
			}
			log.Error("outbox retries exhausted", zap.Error(err))
		},
	}
}
