package outbox

import (
	"context"
	"time"

	"github.com/NordCoder/Crabiner/internal/domain/outbox"
)

const DefaultDeliveredRetention = 72 * time.Hour

// Purger drops delivered messages once they are older than the retention window.
type Purger struct {
	repo      outbox.Repository
	retention time.Duration
	now       func() time.Time
}

func NewPurger(repo outbox.Repository, retention time.Duration, now func() time.Time) *Purger {
	if retention <= 0 {
		retention = DefaultDeliveredRetention
	}
	if now == nil {
		now = time.Now
	}
	return &Purger{repo: repo, retention: retention, now: now}
}

func (p *Purger) Sweep(ctx context.Context) (int64, error) {
	return p.repo.PurgeDelivered(ctx, p.now().Add(-p.retention))
}
