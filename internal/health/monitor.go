package health

import (
	"context"
	"database/sql"
	"time"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"

	StateConnected    = "connected"
	StateDisconnected = "disconnected"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Report is the external health contract. Every dependency reports
// connected or disconnected; overall status degrades if any is down.
type Report struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Queue       string `json:"queue"`
	VectorStore string `json:"vector_store"`
}

type Monitor struct {
	db      *sql.DB
	queue   Pinger
	index   Pinger
	timeout time.Duration
}

func NewMonitor(db *sql.DB, queue Pinger, index Pinger, timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Monitor{db: db, queue: queue, index: index, timeout: timeout}
}

// Check probes each dependency with a bounded timeout. A probe never
// fails the request; it only flips the report.
func (m *Monitor) Check(ctx context.Context) Report {
	report := Report{
		Status:      StatusHealthy,
		Database:    m.probe(ctx, m.pingDB),
		Queue:       m.probe(ctx, m.pingQueue),
		VectorStore: m.probe(ctx, m.pingIndex),
	}
	if report.Database == StateDisconnected ||
		report.Queue == StateDisconnected ||
		report.VectorStore == StateDisconnected {
		report.Status = StatusDegraded
	}
	return report
}

func (m *Monitor) probe(ctx context.Context, ping func(ctx context.Context) error) string {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := ping(ctx); err != nil {
		return StateDisconnected
	}
	return StateConnected
}

func (m *Monitor) pingDB(ctx context.Context) error {
	if m.db == nil {
		return context.Canceled
	}
	return m.db.PingContext(ctx)
}

func (m *Monitor) pingQueue(ctx context.Context) error {
	if m.queue == nil {
		return context.Canceled
	}
	return m.queue.Ping(ctx)
}

func (m *Monitor) pingIndex(ctx context.Context) error {
	if m.index == nil {
		return context.Canceled
	}
	return m.index.Ping(ctx)
}
