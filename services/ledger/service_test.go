package ledger

import (
	"context"
	"testing"
	"time"

	"smallbiznis-reward/pkg/db/pagination"
	"smallbiznis-reward/pkg/errutil"
	"smallbiznis-reward/services/catalog"
	"smallbiznis-reward/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var now = time.Date(2026, 1, 16, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T, users ...*catalog.User) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &catalog.User{}, &Entry{})
	if len(users) > 0 {
		require.NoError(t, db.Create(users).Error)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node, Clock: clockwork.NewFakeClockAt(now)}), db
}

func record(t *testing.T, svc *Service, db *gorm.DB, entries ...*Entry) {
	t.Helper()
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Record(context.Background(), tx, entries)
	}))
}

func balance(t *testing.T, db *gorm.DB, id int64) int64 {
	t.Helper()
	var u catalog.User
	require.NoError(t, db.First(&u, id).Error)
	return u.RewardBalance
}

func TestDistributeSumsPerReceiver(t *testing.T) {
	svc, db := newService(t,
		&catalog.User{ID: 1, Role: catalog.RoleAuthor, RewardBalance: 5},
		&catalog.User{ID: 2, Role: catalog.RoleUser},
	)
	const runID = 42

	// receiver 1 owns two author entries and one consumer entry: 10 + 3 + 2
	record(t, svc, db,
		NewAuthorEntry(runID, 1, 100, 10),
		NewAuthorEntry(runID, 1, 101, 3),
		NewConsumerEntry(runID, 1, 2),
		NewConsumerEntry(runID, 2, 1),
	)

	totals, err := svc.UnpaidTotals(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, []ReceiverTotal{
		{ReceiverID: 1, Points: 15, Entries: 3},
		{ReceiverID: 2, Points: 1, Entries: 1},
	}, totals)

	summary, err := svc.Distribute(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, &Summary{RunID: runID, Receivers: 2, Entries: 4, Points: 16}, summary)

	require.Equal(t, int64(20), balance(t, db, 1))
	require.Equal(t, int64(1), balance(t, db, 2))

	totals, err = svc.UnpaidTotals(context.Background(), runID)
	require.NoError(t, err)
	require.Empty(t, totals)

	var paid []Entry
	require.NoError(t, db.Where("run_id = ?", runID).Find(&paid).Error)
	for _, e := range paid {
		require.True(t, e.Paid)
		require.NotNil(t, e.PaidAt)
		require.True(t, e.PaidAt.Equal(now))
	}
}

func TestDistributeIsIdempotent(t *testing.T) {
	svc, db := newService(t, &catalog.User{ID: 7, Role: catalog.RoleUser})
	record(t, svc, db, NewConsumerEntry(1, 7, 15))

	_, err := svc.Distribute(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(15), balance(t, db, 7))

	summary, err := svc.Distribute(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, &Summary{RunID: 1}, summary)
	require.Equal(t, int64(15), balance(t, db, 7))
}

func TestDistributeMissingReceiverRollsBack(t *testing.T) {
	svc, db := newService(t, &catalog.User{ID: 1, Role: catalog.RoleUser})
	record(t, svc, db,
		NewConsumerEntry(9, 1, 4),
		NewConsumerEntry(9, 2, 4),
	)

	summary, err := svc.Distribute(context.Background(), 9)
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
	require.Equal(t, 1, summary.Receivers)
	require.Equal(t, int64(4), balance(t, db, 1))

	totals, err := svc.UnpaidTotals(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, []ReceiverTotal{{ReceiverID: 2, Points: 4, Entries: 1}}, totals)

	// once the user exists the remainder is paid and nothing is paid twice
	require.NoError(t, db.Create(&catalog.User{ID: 2, Role: catalog.RoleUser}).Error)
	summary, err = svc.Distribute(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Receivers)
	require.Equal(t, int64(4), balance(t, db, 1))
	require.Equal(t, int64(4), balance(t, db, 2))
}

func TestRecordRejectsDuplicateConsumer(t *testing.T) {
	svc, db := newService(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Record(context.Background(), tx, []*Entry{
			NewConsumerEntry(3, 5, 1),
			NewConsumerEntry(3, 5, 1),
		})
	})
	require.True(t, errutil.Is(err, errutil.StatusConflict))

	n, err := svc.CountByRun(context.Background(), 3)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRecordAssignsIdentity(t *testing.T) {
	svc, db := newService(t)
	e := NewAuthorEntry(3, 1, 100, 100)
	record(t, svc, db, e)

	require.NotZero(t, e.ID)
	require.Len(t, e.Hash, 64)
	require.Equal(t, e.Hash, e.GenerateHash())

	e.Points = 101
	require.NotEqual(t, e.Hash, e.GenerateHash())
}

func TestListByReceiverPages(t *testing.T) {
	svc, db := newService(t)
	for run := int64(1); run <= 5; run++ {
		record(t, svc, db, NewConsumerEntry(run, 8, run))
	}
	record(t, svc, db, NewConsumerEntry(1, 9, 1))

	first, info, err := svc.ListByReceiver(context.Background(), 8, pagination.Pagination{Limit: 3})
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.True(t, info.HasMore)
	require.Equal(t, int64(5), first[0].RunID)

	rest, info, err := svc.ListByReceiver(context.Background(), 8, pagination.Pagination{Limit: 3, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.False(t, info.HasMore)
	require.Equal(t, int64(1), rest[1].RunID)

	_, _, err = svc.ListByReceiver(context.Background(), 8, pagination.Pagination{Cursor: "!!"})
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))
}

func TestSourceWorksArePersisted(t *testing.T) {
	svc, db := newService(t)
	record(t, svc, db,
		NewConsumerEntry(1, 8, 2).WithSourceWorks(100, 200),
		NewConsumerEntry(1, 9, 0),
		NewAuthorEntry(1, 8, 300, 100),
	)

	rows, _, err := svc.ListByReceiver(context.Background(), 8, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	got := map[Kind][]int64{}
	for _, e := range rows {
		got[e.Kind] = e.SourceWorkIDs()
	}
	require.Equal(t, map[Kind][]int64{
		KindConsumer: {100, 200},
		KindAuthor:   {300},
	}, got)

	rows, _, err = svc.ListByReceiver(context.Background(), 9, pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Nil(t, rows[0].SourceWorkIDs())
}
