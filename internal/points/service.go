package points

import (
	"context"

	"hosa-study-board/internal/docstore"
	"hosa-study-board/internal/domain"
	"hosa-study-board/internal/errors"
	"hosa-study-board/internal/mutator"
	"hosa-study-board/internal/projector"
)

// TaskPoints is what each kind of completed task is worth.
var TaskPoints = map[string]int{
	"textbook":     20,
	"review_notes": 15,
	"practice":     10,
}

type Service interface {
	Leaderboard(ctx context.Context) ([]projector.PointsRow, error)
	AddPoints(ctx context.Context, member, task string) ([]projector.PointsRow, error)
	Reset(ctx context.Context) error
}

type DefaultService struct {
	store   docstore.Store
	members []string
}

func NewService(store docstore.Store, members []string) *DefaultService {
	return &DefaultService{store: store, members: members}
}

var ref = docstore.Doc(domain.CollectionMeta, domain.DocPoints)

func (s *DefaultService) seed() domain.PointsTally {
	return domain.NewTally(s.members)
}

// Leaderboard seeds the tally on first read.
func (s *DefaultService) Leaderboard(ctx context.Context) ([]projector.PointsRow, error) {
	tally, err := mutator.Ensure(ctx, s.store, ref, s.seed)
	if err != nil {
		return nil, errors.FromStore(err)
	}
	return projector.Points(tally), nil
}

func (s *DefaultService) AddPoints(ctx context.Context, member, task string) ([]projector.PointsRow, error) {
	delta, ok := TaskPoints[task]
	if !ok {
		return nil, errors.UnprocessableEntity("Unknown task", nil)
	}

	if err := mutator.Update(ctx, s.store, ref, s.seed, mutator.IncrementMember(member, delta)); err != nil {
		return nil, errors.FromStore(err)
	}
	return s.Leaderboard(ctx)
}

func (s *DefaultService) Reset(ctx context.Context) error {
	if err := mutator.Update(ctx, s.store, ref, s.seed, mutator.ResetAll(s.seed())); err != nil {
		return errors.FromStore(err)
	}
	return nil
}
