package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SchedulerTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laundromat_scheduler_ticks_total", Help: "Scheduler ticks executed.",
	})
	SchedulerMachineErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laundromat_scheduler_machine_errors_total", Help: "Per-machine tick failures (retried next tick).",
	})
	SchedulerConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laundromat_scheduler_conflicts_total", Help: "Per-machine ticks skipped because the record changed concurrently.",
	})
	SchedulerTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "laundromat_scheduler_tick_duration_seconds", Help: "Scheduler tick duration.",
		Buckets: prometheus.DefBuckets,
	})
	MachinesInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "laundromat_machines_in_use", Help: "Machines in use at the last tick.",
	})
	RecentStarts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "laundromat_recent_starts", Help: "Paid starts within the report window at the last history report.",
	})
	RecentRevenue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "laundromat_recent_revenue", Help: "Revenue within the report window at the last history report.",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "laundromat_events_published_total", Help: "Machine events published to the bus.",
	}, []string{"kind"})
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "laundromat_events_dropped_total", Help: "Events dropped because a subscriber buffer was full.",
	}, []string{"subscriber"})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "laundromat_notifications_total", Help: "Notification delivery attempts by channel and result.",
	}, []string{"channel", "result"})

	MachineStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "laundromat_machine_starts_total", Help: "Start requests by outcome code.",
	}, []string{"result"})
)
