package prometheus

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/slok/aihq/internal/metrics"
	"github.com/slok/aihq/internal/model"
)

const prefix = "aihq"

// RecorderConfig is the configuration of the Prometheus recorder.
type RecorderConfig struct {
	Registerer prometheus.Registerer
}

func (c *RecorderConfig) defaults() {
	if c.Registerer == nil {
		c.Registerer = prometheus.DefaultRegisterer
	}
}

// Recorder is a Prometheus implementation of metrics.Recorder.
type Recorder struct {
	jobProcessedDuration  *prometheus.HistogramVec
	taskExecutionDuration *prometheus.HistogramVec
	queueJobs             *prometheus.GaugeVec
}

// NewRecorder returns a new Prometheus recorder registering its metrics.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	cfg.defaults()

	r := &Recorder{
		jobProcessedDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: prefix,
			Subsystem: "queue",
			Name:      "job_processed_duration_seconds",
			Help:      "The duration of the processing of queue job deliveries.",
			Buckets:   []float64{.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}, []string{"outcome", "attempt"}),

		taskExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: prefix,
			Subsystem: "executor",
			Name:      "task_execution_duration_seconds",
			Help:      "The duration of task executions by terminal status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}, []string{"status"}),

		queueJobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: prefix,
			Subsystem: "queue",
			Name:      "jobs",
			Help:      "The number of jobs in the queue by state.",
		}, []string{"state"}),
	}

	collectors := []prometheus.Collector{
		r.jobProcessedDuration,
		r.taskExecutionDuration,
		r.queueJobs,
	}
	for _, c := range collectors {
		if err := cfg.Registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Recorder) ObserveJobProcessed(_ context.Context, outcome metrics.JobOutcome, attempt int, duration time.Duration) {
	r.jobProcessedDuration.WithLabelValues(string(outcome), strconv.Itoa(attempt)).Observe(duration.Seconds())
}

func (r *Recorder) ObserveTaskExecution(_ context.Context, status model.TaskStatus, duration time.Duration) {
	r.taskExecutionDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

func (r *Recorder) SetQueueStats(_ context.Context, stats model.QueueStats) {
	r.queueJobs.WithLabelValues(string(model.JobStateWaiting)).Set(float64(stats.Waiting))
	r.queueJobs.WithLabelValues(string(model.JobStateActive)).Set(float64(stats.Active))
	r.queueJobs.WithLabelValues(string(model.JobStateCompleted)).Set(float64(stats.Completed))
	r.queueJobs.WithLabelValues(string(model.JobStateFailed)).Set(float64(stats.Failed))
}

var _ metrics.Recorder = &Recorder{}
