package ranking

import (
	"sort"

	"smallbiznis-reward/pkg/celengine"
	"smallbiznis-reward/services/activity"
)

// DefaultTopN is the number of works a daily ranking keeps.
const DefaultTopN = 10

type RankedWork struct {
	Rank      int   `json:"rank"`
	WorkID    int64 `json:"work_id,string"`
	LikeCount int64 `json:"like_count"`
	ViewCount int64 `json:"view_count"`
	Score     int64 `json:"score"`
}

// Order scores every row, sorts by score descending then work id ascending
// and keeps the first topN, numbering ranks from 1.
func Order(rows []activity.WorkActivity, scorer *celengine.Scorer, topN int) ([]RankedWork, error) {
	ranked := make([]RankedWork, 0, len(rows))
	for _, row := range rows {
		score, err := scorer.Score(row.LikeCount, row.ViewCount)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, RankedWork{
			WorkID:    row.WorkID,
			LikeCount: row.LikeCount,
			ViewCount: row.ViewCount,
			Score:     score,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].WorkID < ranked[j].WorkID
	})

	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	return ranked, nil
}
