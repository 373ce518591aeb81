package report

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"laundromat-backend/internal/model"
	"laundromat-backend/internal/obs"
	"laundromat-backend/internal/store"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Summary totals the paid starts recorded within a trailing window.
type Summary struct {
	Since     time.Time
	Starts    int
	Revenue   int64
	ByMachine map[string]int
}

// Reporter periodically summarizes the start history into gauges and a log
// line. It only reads history.
type Reporter struct {
	history store.HistoryStore
	window  time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// New creates a reporter over the last window of history.
func New(history store.HistoryStore, window time.Duration, log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Reporter{
		history: history,
		window:  window,
		now:     time.Now,
		log:     log.With(zap.String("component", "report")),
	}
}

// Summarize computes the summary for the window ending now.
func (r *Reporter) Summarize(ctx context.Context) (Summary, error) {
	since := r.now().Add(-r.window)
	entries, err := r.history.List(ctx, 0)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Since: since, ByMachine: map[string]int{}}
	// Entries are newest first.
	for _, e := range entries {
		if e.Timestamp.Before(since) {
			break
		}
		if e.Action != model.ActionStart {
			continue
		}
		sum.Starts++
		sum.Revenue += e.Price
		sum.ByMachine[e.MachineID]++
	}
	return sum, nil
}

// ReportOnce publishes one summary.
func (r *Reporter) ReportOnce(ctx context.Context) (Summary, error) {
	sum, err := r.Summarize(ctx)
	if err != nil {
		r.log.Error("history report failed", zap.Error(err))
		return Summary{}, err
	}
	obs.RecentStarts.Set(float64(sum.Starts))
	obs.RecentRevenue.Set(float64(sum.Revenue))
	r.log.Info("history report",
		zap.Time("since", sum.Since),
		zap.Int("starts", sum.Starts),
		zap.Int64("revenue", sum.Revenue),
		zap.Int("machines", len(sum.ByMachine)))
	return sum, nil
}

// Run reports once, then on schedule (standard five-field cron or a
// descriptor such as @hourly) until ctx is done. An invalid schedule is
// returned immediately.
func (r *Reporter) Run(ctx context.Context, schedule string) error {
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("report schedule %q: %w", schedule, err)
	}

	c := cron.New(cron.WithParser(parser))
	if _, err := c.AddFunc(schedule, func() { _, _ = r.ReportOnce(ctx) }); err != nil {
		return err
	}
	_, _ = r.ReportOnce(ctx)
	c.Start()
	r.log.Info("history report scheduled", zap.String("schedule", schedule), zap.Duration("window", r.window))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
