package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edustack/tutord/internal/model"
	"github.com/edustack/tutord/internal/pkg/apperr"
)

type fakeTraceLister struct {
	limits []int
	traces []*model.AnswerTrace
}

func (f *fakeTraceLister) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*model.AnswerTrace, error) {
	f.limits = append(f.limits, limit)
	return f.traces, nil
}

func TestTraces_RequiresOwner(t *testing.T) {
	s := NewTutorService(nil, &fakeTraceLister{})
	_, err := s.Traces(context.Background(), "  ", 10)
	require.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestTraces_ClampsLimit(t *testing.T) {
	lister := &fakeTraceLister{traces: []*model.AnswerTrace{{ID: "t1", OwnerID: "alice"}}}
	s := NewTutorService(nil, lister)

	traces, err := s.Traces(context.Background(), "alice", 0)
	require.NoError(t, err)
	require.Len(t, traces, 1)

	_, err = s.Traces(context.Background(), "alice", 100000)
	require.NoError(t, err)
	require.Equal(t, []int{defaultListLimit, maxListLimit}, lister.limits)
}
