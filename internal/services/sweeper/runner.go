package sweeper

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	mDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crabiner_sweeper_deleted_total", Help: "Rows removed by the sweeper.",
	}, []string{"target"})
	mErr = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crabiner_sweeper_errors_total", Help: "Sweeper passes that failed.",
	}, []string{"target"})
	mLoopDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "crabiner_sweeper_pass_duration_seconds", Help: "Sweeper pass duration.",
		Buckets: prometheus.DefBuckets,
	})
)

type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Target is one table or store the sweeper keeps trimmed.
type Target struct {
	Name    string
	Sweeper Sweeper
}

type Config struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Runner periodically deletes refresh credentials and delivered audit messages
// past their retention windows.
type Runner struct {
	log     *zap.Logger
	targets []Target
	cfg     Config
}

func New(log *zap.Logger, cfg Config, targets ...Target) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Runner{log: log.With(zap.String("component", "sweeper")), targets: targets, cfg: cfg}
}

// tick sweeps every target once. A failing target does not stop the others.
func (r *Runner) tick(ctx context.Context) int64 {
	start := time.Now()
	ctx, span := otel.Tracer("sweeper").Start(ctx, "sweeper.pass")
	defer span.End()

	var total int64
	for _, t := range r.targets {
		n, err := t.Sweeper.Sweep(ctx)
		if err != nil {
			span.RecordError(err)
			mErr.WithLabelValues(t.Name).Inc()
			r.log.Warn("sweep failed", zap.String("target", t.Name), zap.Error(err))
			continue
		}
		if n > 0 {
			mDeleted.WithLabelValues(t.Name).Add(float64(n))
			r.log.Info("swept", zap.String("target", t.Name), zap.Int64("deleted", n))
		}
		total += n
	}
	span.SetAttributes(attribute.Int64("sweep.deleted", total))
	mLoopDur.Observe(time.Since(start).Seconds())
	return total
}

func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}
