// Package mutator applies pure update functions to shared aggregate documents
// inside store transactions, so concurrent writers never lose each other's work.
package mutator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"hosa-study-board/internal/docstore"
	"hosa-study-board/internal/domain"
)

// Update reads ref (or seed() when it does not exist), applies fn and writes the
// result back in the same transaction. fn may run more than once and must not
// mutate its argument.
func Update[T any](ctx context.Context, store docstore.Store, ref docstore.Ref, seed func() T, fn func(T) T) error {
	err := store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}

		current := seed()
		if snap.Exists {
			if err := snap.DataTo(&current); err != nil {
				return err
			}
		}

		next, err := json.Marshal(fn(current))
		if err != nil {
			return err
		}
		if snap.Exists && bytes.Equal(next, snap.Data) {
			return nil
		}
		return tx.Set(ref, json.RawMessage(next))
	})
	if err != nil {
		return fmt.Errorf("updating %s: %w", ref.Path(), err)
	}
	return nil
}

// Ensure creates ref with seed() if it is absent and returns its current value.
func Ensure[T any](ctx context.Context, store docstore.Store, ref docstore.Ref, seed func() T) (T, error) {
	var value T
	err := store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		if snap.Exists {
			return snap.DataTo(&value)
		}
		value = seed()
		return tx.Set(ref, value)
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("seeding %s: %w", ref.Path(), err)
	}
	return value, nil
}

// IncrementMember adds delta to member, inserting the member at zero first.
// Scores never drop below zero.
func IncrementMember(member string, delta int) func(domain.PointsTally) domain.PointsTally {
	return func(t domain.PointsTally) domain.PointsTally {
		next := t.Clone()
		i := next.Index(member)
		if i < 0 {
			next = append(next, domain.MemberScore{Name: member})
			i = len(next) - 1
		}
		next[i].Score += delta
		if next[i].Score < 0 {
			next[i].Score = 0
		}
		return next
	}
}

// ResetAll overwrites the tally with seed regardless of its current value.
func ResetAll(seed domain.PointsTally) func(domain.PointsTally) domain.PointsTally {
	return func(domain.PointsTally) domain.PointsTally {
		return seed.Clone()
	}
}

func PrependTodo(item domain.TodoItem) func(domain.TodoList) domain.TodoList {
	return func(l domain.TodoList) domain.TodoList {
		items := make([]domain.TodoItem, 0, len(l.Items)+1)
		items = append(items, item)
		items = append(items, l.Items...)
		return domain.TodoList{Items: items}
	}
}

// RemoveTodoAt drops the item at index; an index outside the list read inside
// the transaction leaves the list untouched.
func RemoveTodoAt(index int) func(domain.TodoList) domain.TodoList {
	return func(l domain.TodoList) domain.TodoList {
		if index < 0 || index >= len(l.Items) {
			return l.Clone()
		}
		return removeAt(l, index)
	}
}

// RemoveTodoMatching is RemoveTodoAt that also requires the item at index to
// be the one the caller saw, identified by its creation time.
func RemoveTodoMatching(index int, createdAt int64) func(domain.TodoList) domain.TodoList {
	return func(l domain.TodoList) domain.TodoList {
		if index < 0 || index >= len(l.Items) || l.Items[index].CreatedAt != createdAt {
			return l.Clone()
		}
		return removeAt(l, index)
	}
}

func ClearTodos() func(domain.TodoList) domain.TodoList {
	return func(domain.TodoList) domain.TodoList {
		return domain.TodoList{Items: []domain.TodoItem{}}
	}
}

func removeAt(l domain.TodoList, index int) domain.TodoList {
	items := make([]domain.TodoItem, 0, len(l.Items)-1)
	items = append(items, l.Items[:index]...)
	items = append(items, l.Items[index+1:]...)
	return domain.TodoList{Items: items}
}
