package reward

import (
	"context"
	"encoding/json"

	"smallbiznis-reward/pkg/db/option"
	"smallbiznis-reward/pkg/db/pagination"
	"smallbiznis-reward/pkg/errutil"
	"smallbiznis-reward/services/ledger"
	"smallbiznis-reward/services/ranking"

	"go.uber.org/zap"
)

// UserRewardEntry is a ledger entry with the ranked works it was earned
// under: the author's own work, or every top work a consumer qualified
// under.
type UserRewardEntry struct {
	*ledger.Entry
	RunDate string               `json:"run_date"`
	Reasons []ranking.RankedWork `json:"reasons"`
}

type UserRewards struct {
	UserID   int64                `json:"user_id,string"`
	Balance  int64                `json:"balance"`
	Entries  []UserRewardEntry    `json:"entries"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

// GetUserRewards returns a user's balance and reward history, newest first,
// each entry labelled with its run date and the ranked works behind it.
func (s *Service) GetUserRewards(ctx context.Context, userID int64, page pagination.Pagination) (*UserRewards, error) {
	user, err := s.catalog.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	entries, info, err := s.ledger.ListByReceiver(ctx, userID, page)
	if err != nil {
		return nil, err
	}

	runs, err := s.runsOf(ctx, entries)
	if err != nil {
		return nil, err
	}

	out := &UserRewards{
		UserID:   user.ID,
		Balance:  user.RewardBalance,
		Entries:  make([]UserRewardEntry, 0, len(entries)),
		PageInfo: info,
	}
	for _, e := range entries {
		row := UserRewardEntry{Entry: e, Reasons: []ranking.RankedWork{}}
		if r, ok := runs[e.RunID]; ok {
			row.RunDate = r.date
			for _, workID := range e.SourceWorkIDs() {
				if w, ok := r.works[workID]; ok {
					row.Reasons = append(row.Reasons, w)
				}
			}
		}
		out.Entries = append(out.Entries, row)
	}

	return out, nil
}

type runRanking struct {
	date  string
	works map[int64]ranking.RankedWork
}

// runsOf loads the runs behind entries with their ranking snapshots keyed
// by work id.
func (s *Service) runsOf(ctx context.Context, entries []*ledger.Entry) (map[int64]runRanking, error) {
	out := make(map[int64]runRanking)
	if len(entries) == 0 {
		return out, nil
	}

	seen := make(map[int64]bool)
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		if !seen[e.RunID] {
			seen[e.RunID] = true
			ids = append(ids, e.RunID)
		}
	}

	runs, err := s.runs.Find(ctx, &Run{}, option.ApplyOperator(option.Condition{
		Field:    "id",
		Operator: option.IN,
		Value:    ids,
	}))
	if err != nil {
		return nil, errutil.Internal("failed to load reward runs", err)
	}

	for _, r := range runs {
		rr := runRanking{date: r.RunDate, works: make(map[int64]ranking.RankedWork)}
		if len(r.Ranking) > 0 {
			var ranked []ranking.RankedWork
			if err := json.Unmarshal(r.Ranking, &ranked); err != nil {
				zap.L().Warn("undecodable ranking snapshot", zap.Int64("run_id", r.ID), zap.Error(err))
			}
			for _, w := range ranked {
				rr.works[w.WorkID] = w
			}
		}
		out[r.ID] = rr
	}
	return out, nil
}
