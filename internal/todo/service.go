package todo

import (
	"context"
	"strings"
	"time"

	"hosa-study-board/internal/docstore"
	"hosa-study-board/internal/domain"
	"hosa-study-board/internal/errors"
	"hosa-study-board/internal/mutator"
	"hosa-study-board/internal/projector"
)

type Service interface {
	List(ctx context.Context) (projector.TodoProjection, error)
	Add(ctx context.Context, text, addedBy string) (domain.TodoItem, error)
	// Remove deletes the item at index. With createdAt set, it only does so
	// if that item is still the one the caller saw.
	Remove(ctx context.Context, index int, createdAt *int64) error
	Clear(ctx context.Context) error
}

type DefaultService struct {
	store docstore.Store
	now   func() time.Time
}

func NewService(store docstore.Store) *DefaultService {
	return &DefaultService{store: store, now: time.Now}
}

var ref = docstore.Doc(domain.CollectionMeta, domain.DocTodos)

func seed() domain.TodoList {
	return domain.TodoList{Items: []domain.TodoItem{}}
}

func (s *DefaultService) List(ctx context.Context) (projector.TodoProjection, error) {
	snap, err := s.store.Get(ctx, ref)
	if err != nil {
		return projector.TodoProjection{}, errors.FromStore(err)
	}

	list := seed()
	if snap.Exists {
		if err := snap.DataTo(&list); err != nil {
			return projector.TodoProjection{}, errors.Internal(err)
		}
	}
	return projector.Todos(list), nil
}

func (s *DefaultService) Add(ctx context.Context, text, addedBy string) (domain.TodoItem, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.TodoItem{}, errors.UnprocessableEntity("Task text cannot be empty", nil)
	}

	item := domain.TodoItem{
		Text:      text,
		AddedBy:   strings.TrimSpace(addedBy),
		CreatedAt: s.now().UnixMilli(),
	}
	if err := mutator.Update(ctx, s.store, ref, seed, mutator.PrependTodo(item)); err != nil {
		return domain.TodoItem{}, errors.FromStore(err)
	}
	return item, nil
}

func (s *DefaultService) Remove(ctx context.Context, index int, createdAt *int64) error {
	fn := mutator.RemoveTodoAt(index)
	if createdAt != nil {
		fn = mutator.RemoveTodoMatching(index, *createdAt)
	}

	if err := mutator.Update(ctx, s.store, ref, seed, fn); err != nil {
		return errors.FromStore(err)
	}
	return nil
}

func (s *DefaultService) Clear(ctx context.Context) error {
	if err := mutator.Update(ctx, s.store, ref, seed, mutator.ClearTodos()); err != nil {
		return errors.FromStore(err)
	}
	return nil
}
