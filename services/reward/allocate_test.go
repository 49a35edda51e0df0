package reward

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smallbiznis-reward/pkg/errutil"
	"smallbiznis-reward/services/catalog"
	"smallbiznis-reward/services/ledger"
	"smallbiznis-reward/services/ranking"

	"github.com/stretchr/testify/require"
)

type catalogStub struct {
	works map[int64]*catalog.Work
	users map[int64]bool
}

func (c *catalogStub) FindUser(ctx context.Context, id int64) (*catalog.User, error) {
	if !c.users[id] {
		return nil, errutil.NotFound("user not found", nil)
	}
	return &catalog.User{ID: id}, nil
}

func (c *catalogStub) FindWork(ctx context.Context, id int64) (*catalog.Work, error) {
	w, ok := c.works[id]
	if !ok {
		return nil, errutil.NotFound("work not found", nil)
	}
	return w, nil
}

func (c *catalogStub) FindUsers(ctx context.Context, ids []int64) (map[int64]*catalog.User, error) {
	out := make(map[int64]*catalog.User, len(ids))
	for _, id := range ids {
		u, err := c.FindUser(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = u
	}
	return out, nil
}

func (c *catalogStub) FindWorks(ctx context.Context, ids []int64) (map[int64]*catalog.Work, error) {
	out := make(map[int64]*catalog.Work, len(ids))
	for _, id := range ids {
		w, err := c.FindWork(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = w
	}
	return out, nil
}

type qualifierStub struct {
	mu    sync.Mutex
	calls int
	users map[int64][]int64
	err   error
}

func (q *qualifierStub) QualifiedUserIDs(ctx context.Context, workID int64, date time.Time) ([]int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.err != nil {
		return nil, q.err
	}
	return q.users[workID], nil
}

func rankedWorks(n int) []ranking.RankedWork {
	out := make([]ranking.RankedWork, n)
	for i := range out {
		out[i] = ranking.RankedWork{Rank: i + 1, WorkID: int64(i + 1)}
	}
	return out
}

func stubCatalog(works int, users ...int64) *catalogStub {
	c := &catalogStub{works: map[int64]*catalog.Work{}, users: map[int64]bool{}}
	for i := 1; i <= works; i++ {
		c.works[int64(i)] = &catalog.Work{ID: int64(i), AuthorID: int64(1000 + i)}
		c.users[int64(1000+i)] = true
	}
	for _, u := range users {
		c.users[u] = true
	}
	return c
}

func TestAllocate(t *testing.T) {
	q := &qualifierStub{users: map[int64][]int64{
		1: {7, 8},
		2: {7},
		3: {9},
	}}
	a := NewAllocator(stubCatalog(3, 7, 8, 9), q, 4)

	alloc, err := a.Allocate(context.Background(), 1, runDay, rankedWorks(3))
	require.NoError(t, err)

	require.Len(t, alloc.Authors, 3)
	for i, e := range alloc.Authors {
		require.Equal(t, ledger.KindAuthor, e.Kind)
		require.Equal(t, int64(1001+i), e.ReceiverID)
		require.Equal(t, AuthorPoints(i+1), e.Points)
		require.Equal(t, int64(i+1), *e.WorkID)
	}

	got := map[int64]int64{}
	for _, e := range alloc.Consumers {
		require.Equal(t, ledger.KindConsumer, e.Kind)
		_, dup := got[e.ReceiverID]
		require.False(t, dup, "user %d has two consumer entries", e.ReceiverID)
		got[e.ReceiverID] = e.Points
	}
	require.Equal(t, map[int64]int64{7: 2, 8: 1, 9: 1}, got)
	require.Equal(t, int64(100+90+80+4), alloc.Points())
	require.Len(t, alloc.Entries(), 6)

	sources := map[int64][]int64{}
	for _, e := range alloc.Consumers {
		sources[e.ReceiverID] = e.SourceWorkIDs()
	}
	require.Equal(t, map[int64][]int64{7: {1, 2}, 8: {1}, 9: {3}}, sources)
}

func TestAllocateIgnoresRanksBeyondTen(t *testing.T) {
	q := &qualifierStub{users: map[int64][]int64{
		10: {7},
		11: {7, 8},
		12: {8},
	}}
	a := NewAllocator(stubCatalog(12, 7, 8), q, 3)

	alloc, err := a.Allocate(context.Background(), 1, runDay, rankedWorks(12))
	require.NoError(t, err)

	require.Len(t, alloc.Authors, 10)
	for _, e := range alloc.Authors {
		require.LessOrEqual(t, *e.WorkID, int64(10))
	}

	require.Len(t, alloc.Consumers, 1)
	require.Equal(t, int64(7), alloc.Consumers[0].ReceiverID)
	require.Equal(t, int64(1), alloc.Consumers[0].Points)
	require.Equal(t, []int64{10}, alloc.Consumers[0].SourceWorkIDs())
}

func TestAllocateAuthorOfSeveralWorks(t *testing.T) {
	c := stubCatalog(2)
	c.works[2].AuthorID = 1001
	a := NewAllocator(c, &qualifierStub{}, 1)

	alloc, err := a.Allocate(context.Background(), 1, runDay, rankedWorks(2))
	require.NoError(t, err)
	require.Len(t, alloc.Authors, 2)
	require.Equal(t, int64(190), alloc.Points())
	require.Empty(t, alloc.Consumers)
}

func TestAllocateEmptyRanking(t *testing.T) {
	q := &qualifierStub{}
	alloc, err := NewAllocator(stubCatalog(0), q, 0).Allocate(context.Background(), 1, runDay, nil)
	require.NoError(t, err)
	require.Empty(t, alloc.Entries())
	require.Zero(t, q.calls)
}

func TestAllocateFailures(t *testing.T) {
	t.Run("unknown work", func(t *testing.T) {
		_, err := NewAllocator(stubCatalog(1), &qualifierStub{}, 1).Allocate(context.Background(), 1, runDay, rankedWorks(2))
		require.True(t, errutil.Is(err, errutil.StatusNotFound))
	})

	t.Run("unknown consumer", func(t *testing.T) {
		q := &qualifierStub{users: map[int64][]int64{1: {77}}}
		_, err := NewAllocator(stubCatalog(1), q, 1).Allocate(context.Background(), 1, runDay, rankedWorks(1))
		require.True(t, errutil.Is(err, errutil.StatusNotFound))
	})

	t.Run("qualifier error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := NewAllocator(stubCatalog(3), &qualifierStub{err: boom}, 2).Allocate(context.Background(), 1, runDay, rankedWorks(3))
		require.ErrorIs(t, err, boom)
	})
}
