package mutator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hosa-study-board/internal/docstore"
	"hosa-study-board/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pointsRef = docstore.Doc(domain.CollectionMeta, domain.DocPoints)
	todosRef  = docstore.Doc(domain.CollectionMeta, domain.DocTodos)
	members   = []string{"Haena", "Julia", "Juana"}
)

func newStore() *docstore.MemStore {
	return docstore.NewMemStore(nil, docstore.RetryPolicy{MaxAttempts: 50, Base: time.Millisecond})
}

func seedTally() domain.PointsTally {
	return domain.NewTally(members)
}

func seedTodos() domain.TodoList {
	return domain.TodoList{Items: []domain.TodoItem{}}
}

func readTally(t *testing.T, s docstore.Store) domain.PointsTally {
	t.Helper()
	snap, err := s.Get(context.Background(), pointsRef)
	require.NoError(t, err)
	require.True(t, snap.Exists)
	var tally domain.PointsTally
	require.NoError(t, snap.DataTo(&tally))
	return tally
}

func readTodos(t *testing.T, s docstore.Store) domain.TodoList {
	t.Helper()
	snap, err := s.Get(context.Background(), todosRef)
	require.NoError(t, err)
	var list domain.TodoList
	require.NoError(t, snap.DataTo(&list))
	return list
}

func TestUpdate_SeedsMissingDocument(t *testing.T) {
	s := newStore()

	require.NoError(t, Update(context.Background(), s, pointsRef, seedTally, IncrementMember("Julia", 20)))

	assert.Equal(t, domain.PointsTally{{"Haena", 0}, {"Julia", 20}, {"Juana", 0}}, readTally(t, s))
}

func TestIncrementMember_InsertsUnknownMember(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	require.NoError(t, Update(ctx, s, pointsRef, seedTally, IncrementMember("Mina", 10)))
	require.NoError(t, Update(ctx, s, pointsRef, seedTally, IncrementMember("Mina", -25)))

	tally := readTally(t, s)
	assert.Equal(t, 0, tally.Score("Mina"))
	assert.Equal(t, "Mina", tally[3].Name)
}

func TestIncrementMember_ForcedConflictLosesNothing(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, pointsRef, seedTally()))

	// The first commit attempt races with a competing writer and must retry.
	var raced atomic.Bool
	s.OnBeforeCommit(func() {
		if raced.CompareAndSwap(false, true) {
			s.OnBeforeCommit(nil)
			require.NoError(t, Update(ctx, s, pointsRef, seedTally, IncrementMember("Haena", 15)))
		}
	})

	var calls int
	err := Update(ctx, s, pointsRef, seedTally, func(tally domain.PointsTally) domain.PointsTally {
		calls++
		return IncrementMember("Haena", 20)(tally)
	})
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 35, readTally(t, s).Score("Haena"))
}

func TestIncrementMember_ConcurrentCallersSumAllDeltas(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	deltas := map[string][]int{
		"Haena": {20, 15, 10, 20},
		"Julia": {10, 10, 15},
		"Juana": {20, 20},
	}

	var wg sync.WaitGroup
	for member, ds := range deltas {
		for _, d := range ds {
			wg.Add(1)
			go func(member string, d int) {
				defer wg.Done()
				assert.NoError(t, Update(ctx, s, pointsRef, seedTally, IncrementMember(member, d)))
			}(member, d)
		}
	}
	wg.Wait()

	tally := readTally(t, s)
	assert.Equal(t, 65, tally.Score("Haena"))
	assert.Equal(t, 35, tally.Score("Julia"))
	assert.Equal(t, 40, tally.Score("Juana"))
}

func TestResetAll_Idempotent(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	require.NoError(t, Update(ctx, s, pointsRef, seedTally, IncrementMember("Juana", 10)))

	require.NoError(t, Update(ctx, s, pointsRef, seedTally, ResetAll(seedTally())))
	once := readTally(t, s)
	require.NoError(t, Update(ctx, s, pointsRef, seedTally, ResetAll(seedTally())))

	assert.Equal(t, once, readTally(t, s))
	assert.Equal(t, seedTally(), once)
}

func TestUpdate_UnchangedValueSkipsWrite(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	require.NoError(t, Update(ctx, s, pointsRef, seedTally, ResetAll(seedTally())))

	before, err := s.Get(ctx, pointsRef)
	require.NoError(t, err)
	require.NoError(t, Update(ctx, s, pointsRef, seedTally, ResetAll(seedTally())))
	after, err := s.Get(ctx, pointsRef)
	require.NoError(t, err)

	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.Seq, after.Seq)
}

func TestPrependTodo_NewestFirst(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	require.NoError(t, Update(ctx, s, todosRef, seedTodos, PrependTodo(domain.TodoItem{Text: "first", CreatedAt: 1})))
	require.NoError(t, Update(ctx, s, todosRef, seedTodos, PrependTodo(domain.TodoItem{Text: "second", CreatedAt: 2})))

	list := readTodos(t, s)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "second", list.Items[0].Text)
	assert.Equal(t, "first", list.Items[1].Text)
}

func TestRemoveTodoAt_StaleIndexIsNoop(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		require.NoError(t, Update(ctx, s, todosRef, seedTodos, PrependTodo(domain.TodoItem{Text: "t", CreatedAt: int64(i)})))
	}

	// Another client shrinks the list after this one rendered index 2.
	require.NoError(t, Update(ctx, s, todosRef, seedTodos, RemoveTodoAt(0)))
	require.NoError(t, Update(ctx, s, todosRef, seedTodos, RemoveTodoAt(0)))
	require.NoError(t, Update(ctx, s, todosRef, seedTodos, RemoveTodoAt(2)))

	list := readTodos(t, s)
	require.Len(t, list.Items, 1)
	assert.Equal(t, int64(1), list.Items[0].CreatedAt)

	require.NoError(t, Update(ctx, s, todosRef, seedTodos, RemoveTodoAt(-1)))
	assert.Len(t, readTodos(t, s).Items, 1)
}

func TestRemoveTodoMatching_RequiresSameItem(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	require.NoError(t, Update(ctx, s, todosRef, seedTodos, PrependTodo(domain.TodoItem{Text: "a", CreatedAt: 10})))
	require.NoError(t, Update(ctx, s, todosRef, seedTodos, PrependTodo(domain.TodoItem{Text: "b", CreatedAt: 20})))

	require.NoError(t, Update(ctx, s, todosRef, seedTodos, RemoveTodoMatching(0, 10)))
	assert.Len(t, readTodos(t, s).Items, 2)

	require.NoError(t, Update(ctx, s, todosRef, seedTodos, RemoveTodoMatching(1, 10)))
	list := readTodos(t, s)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "b", list.Items[0].Text)
}

func TestClearTodos(t *testing.T) {
	s := newStore()
	ctx := context.Background()
	require.NoError(t, Update(ctx, s, todosRef, seedTodos, PrependTodo(domain.TodoItem{Text: "a"})))

	require.NoError(t, Update(ctx, s, todosRef, seedTodos, ClearTodos()))

	list := readTodos(t, s)
	assert.NotNil(t, list.Items)
	assert.Empty(t, list.Items)
}

func TestEnsure_CreatesOnce(t *testing.T) {
	s := newStore()
	ctx := context.Background()

	tally, err := Ensure(ctx, s, pointsRef, seedTally)
	require.NoError(t, err)
	assert.Equal(t, seedTally(), tally)

	require.NoError(t, Update(ctx, s, pointsRef, seedTally, IncrementMember("Julia", 10)))
	tally, err = Ensure(ctx, s, pointsRef, seedTally)
	require.NoError(t, err)
	assert.Equal(t, 10, tally.Score("Julia"))
}
