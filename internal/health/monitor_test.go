package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error {
	return f.err
}

func TestCheck_ReportsPerDependency(t *testing.T) {
	m := NewMonitor(nil, &fakePinger{}, &fakePinger{}, time.Second)
	report := m.Check(context.Background())
	// no db handle counts as disconnected
	require.Equal(t, StateDisconnected, report.Database)
	require.Equal(t, StateConnected, report.Queue)
	require.Equal(t, StateConnected, report.VectorStore)
	require.Equal(t, StatusDegraded, report.Status)
}

func TestCheck_DegradesOnFailedProbe(t *testing.T) {
	m := NewMonitor(nil, &fakePinger{err: errors.New("queue down")}, &fakePinger{}, time.Second)
	report := m.Check(context.Background())
	require.Equal(t, StateDisconnected, report.Queue)
	require.Equal(t, StatusDegraded, report.Status)
}
