package rediskey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	RankingPrefix  = "reward:ranking"
	RunSeqPrefix   = "seq:RWD"
	DistributeLock = "reward:distribute"
	ResumeLock     = "reward:resume"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildRankingKey returns "reward:ranking:{date}:{topN}:{exprHash}"
func BuildRankingKey(date string, topN int, exprHash string) string {
	return NamespaceKey(RankingPrefix, fmt.Sprintf("%s:%d:%s", date, topN, exprHash))
}

// HashExpression returns the first 12 hex characters of the sha256 of a
// score expression.
func HashExpression(expr string) string {
	sum := sha256.Sum256([]byte(expr))
	return hex.EncodeToString(sum[:])[:12]
}

// BuildRunSeqKey returns "seq:RWD:{yymmdd}"
func BuildRunSeqKey(yymmdd string) string {
	return NamespaceKey(RunSeqPrefix, yymmdd)
}

// BuildResumeTaskID returns "reward:resume:{runID}", collapsing repeated
// resume requests for one run.
func BuildResumeTaskID(runID int64) string {
	return NamespaceKey(ResumeLock, fmt.Sprintf("%d", runID))
}

// BuildDistributeTaskID returns "reward:distribute:{date}", the asynq task id
// used to collapse duplicate enqueues for one run date.
func BuildDistributeTaskID(date string) string {
	return NamespaceKey(DistributeLock, date)
}
