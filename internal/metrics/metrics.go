package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/imamik/dropship/internal/provisioning"
)

// Run states reported by Status.
const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Metrics owns a private registry and the run status snapshot.
type Metrics struct {
	Registry *prometheus.Registry

	eventsTotal   *prometheus.CounterVec
	pushesTotal   *prometheus.CounterVec
	vmOpsTotal    *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	addresses     prometheus.Counter
	progress      *prometheus.GaugeVec

	mu     sync.Mutex
	status Status
}

// Status is the JSON run snapshot served on /status.
type Status struct {
	RunID     string    `json:"run_id,omitempty"`
	State     string    `json:"state"`
	Phase     string    `json:"phase,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	LastEvent string    `json:"last_event,omitempty"`
	Events    int       `json:"events"`
	Pushes    int       `json:"pushes"`
	Failures  int       `json:"failures"`
	Error     string    `json:"error,omitempty"`
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dropship",
				Subsystem: "provisioning",
				Name:      "events_total",
				Help:      "Total number of provisioning events by type and phase",
			},
			[]string{"type", "phase"},
		),
		pushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dropship",
				Subsystem: "provisioning",
				Name:      "config_pushes_total",
				Help:      "Total number of configuration pushes by task set and result",
			},
			[]string{"task_set", "result"},
		),
		vmOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dropship",
				Subsystem: "provider",
				Name:      "vm_operations_total",
				Help:      "Total number of hypervisor VM operations by kind",
			},
			[]string{"operation"},
		),
		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dropship",
				Subsystem: "provisioning",
				Name:      "phase_duration_seconds",
				Help:      "Duration of completed provisioning phases in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
			},
			[]string{"phase"},
		),
		addresses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "dropship",
				Subsystem: "addressing",
				Name:      "resolved_total",
				Help:      "Total number of host addresses resolved from DHCP leases",
			},
		),
		progress: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "dropship",
				Subsystem: "provisioning",
				Name:      "progress_ratio",
				Help:      "Fraction of hosts handled in the current step of a phase",
			},
			[]string{"phase"},
		),
		status: Status{State: StateIdle},
	}
	m.Registry.MustRegister(
		m.eventsTotal,
		m.pushesTotal,
		m.vmOpsTotal,
		m.phaseDuration,
		m.addresses,
		m.progress,
	)
	return m
}

// Start marks the beginning of a run.
func (m *Metrics) Start(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.status = Status{RunID: runID, State: StateRunning, StartedAt: now, UpdatedAt: now}
}

// Finish records the outcome of a run.
func (m *Metrics) Finish(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.UpdatedAt = time.Now()
	if err != nil {
		m.status.State = StateFailed
		m.status.Error = err.Error()
		return
	}
	m.status.State = StateCompleted
}

// Status returns a copy of the current run snapshot.
func (m *Metrics) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// phaseLabel strips the "(i/n)" position suffix the pipeline adds.
func phaseLabel(phase string) string {
	name, _, _ := strings.Cut(phase, " ")
	return name
}

func (m *Metrics) record(event provisioning.Event) {
	phase := phaseLabel(event.Phase)
	m.eventsTotal.WithLabelValues(string(event.Type), phase).Inc()

	switch event.Type {
	case provisioning.EventPushCompleted:
		m.pushesTotal.WithLabelValues(event.Fields["task_set"], "success").Inc()
	case provisioning.EventPushFailed:
		m.pushesTotal.WithLabelValues(event.Fields["task_set"], "failure").Inc()
	case provisioning.EventVMCloned, provisioning.EventVMAttached, provisioning.EventVMStarted, provisioning.EventVMSnapshot:
		m.vmOpsTotal.WithLabelValues(strings.TrimPrefix(string(event.Type), "vm.")).Inc()
	case provisioning.EventAddressResolved:
		m.addresses.Inc()
	case provisioning.EventPhaseCompleted:
		if ms, ok := event.Fields["duration_ms"]; ok {
			if d, err := time.ParseDuration(ms + "ms"); err == nil {
				m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.Events++
	m.status.UpdatedAt = time.Now()
	m.status.LastEvent = string(event.Type)
	switch event.Type {
	case provisioning.EventPhaseStarted:
		m.status.Phase = phase
	case provisioning.EventPushCompleted:
		m.status.Pushes++
	case provisioning.EventPushFailed:
		m.status.Pushes++
		m.status.Failures++
	case provisioning.EventPhaseFailed, provisioning.EventValidationError:
		m.status.Failures++
	}
}

func (m *Metrics) recordProgress(phase string, current, total int) {
	if total <= 0 {
		return
	}
	m.progress.WithLabelValues(phaseLabel(phase)).Set(float64(current) / float64(total))
}
