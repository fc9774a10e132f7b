package service

import (
	"context"
	"strings"

	"github.com/edustack/tutord/internal/model"
	"github.com/edustack/tutord/internal/pkg/apperr"
	"github.com/edustack/tutord/internal/retrieve"
)

const maxQuestionLen = 2000

type TraceLister interface {
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*model.AnswerTrace, error)
}

type TutorService struct {
	orchestrator *retrieve.Orchestrator
	traces       TraceLister
}

func NewTutorService(orchestrator *retrieve.Orchestrator, traces TraceLister) *TutorService {
	return &TutorService{orchestrator: orchestrator, traces: traces}
}

func (s *TutorService) Ask(ctx context.Context, ownerID, question string, topK int) (*retrieve.Answer, error) {
	question = strings.TrimSpace(question)
	if len(question) > maxQuestionLen {
		return nil, apperr.New(apperr.KindInvalidQuery, "question is too long")
	}
	return s.orchestrator.Answer(ctx, strings.TrimSpace(ownerID), question, topK)
}

// Traces returns an owner's most recent answer audit records.
func (s *TutorService) Traces(ctx context.Context, ownerID string, limit int) ([]*model.AnswerTrace, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperr.New(apperr.KindInvalid, "owner is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.traces.ListByOwner(ctx, ownerID, limit)
}
