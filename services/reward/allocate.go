package reward

import (
	"context"
	"sort"
	"time"

	"smallbiznis-reward/services/activity"
	"smallbiznis-reward/services/catalog"
	"smallbiznis-reward/services/ledger"
	"smallbiznis-reward/services/ranking"

	"golang.org/x/sync/errgroup"
)

// AuthorPoints is the payout for the author of the work ranked r,
// 100 for the first place down to 10 for the tenth. Ranks outside 1..10
// earn nothing.
func AuthorPoints(r int) int64 {
	if r < 1 || r > 10 {
		return 0
	}
	return int64(110 - 10*r)
}

// ConsumerPointsPerWork is what a consumer earns for each ranked work they
// qualify under.
const ConsumerPointsPerWork = 1

type Allocation struct {
	Authors   []*ledger.Entry
	Consumers []*ledger.Entry
}

func (a *Allocation) Entries() []*ledger.Entry {
	out := make([]*ledger.Entry, 0, len(a.Authors)+len(a.Consumers))
	out = append(out, a.Authors...)
	return append(out, a.Consumers...)
}

func (a *Allocation) Points() int64 {
	var sum int64
	for _, e := range a.Entries() {
		sum += e.Points
	}
	return sum
}

type Allocator struct {
	catalog     catalog.Repository
	qualifier   activity.Qualifier
	concurrency int
}

func NewAllocator(c catalog.Repository, q activity.Qualifier, concurrency int) *Allocator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Allocator{catalog: c, qualifier: q, concurrency: concurrency}
}

// Allocate turns a ranking into unpaid ledger entries for runID: one author
// entry per ranked work and one consumer entry per distinct qualifying user
// carrying one point per paid work they qualify under, along with those
// works. Any work or user that cannot be resolved fails the whole
// allocation.
func (a *Allocator) Allocate(ctx context.Context, runID int64, date time.Time, ranked []ranking.RankedWork) (*Allocation, error) {
	alloc := &Allocation{}
	if len(ranked) == 0 {
		return alloc, nil
	}

	workIDs := make([]int64, len(ranked))
	for i, r := range ranked {
		workIDs[i] = r.WorkID
	}
	works, err := a.catalog.FindWorks(ctx, workIDs)
	if err != nil {
		return nil, err
	}

	qualified := make([][]int64, len(ranked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, r := range ranked {
		g.Go(func() error {
			ids, err := a.qualifier.QualifiedUserIDs(gctx, r.WorkID, date)
			if err != nil {
				return err
			}
			qualified[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	receivers := make([]int64, 0, len(ranked))
	for _, r := range ranked {
		w := works[r.WorkID]
		points := AuthorPoints(r.Rank)
		if points == 0 {
			continue
		}
		alloc.Authors = append(alloc.Authors, ledger.NewAuthorEntry(runID, w.AuthorID, w.ID, points))
		receivers = append(receivers, w.AuthorID)
	}

	// consumers earn only under ranks that pay their author
	sources := make(map[int64][]int64)
	for i, r := range ranked {
		if AuthorPoints(r.Rank) == 0 {
			continue
		}
		for _, userID := range qualified[i] {
			sources[userID] = append(sources[userID], r.WorkID)
		}
	}

	users := make([]int64, 0, len(sources))
	for userID := range sources {
		users = append(users, userID)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })

	if _, err := a.catalog.FindUsers(ctx, append(receivers, users...)); err != nil {
		return nil, err
	}

	for _, userID := range users {
		workIDs := sources[userID]
		points := int64(len(workIDs)) * ConsumerPointsPerWork
		alloc.Consumers = append(alloc.Consumers, ledger.NewConsumerEntry(runID, userID, points).WithSourceWorks(workIDs...))
	}

	return alloc, nil
}
