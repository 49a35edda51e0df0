package taskname

const (
	// Reward tasks
	RewardDistribute = "reward:distribute"
	RewardResume     = "reward:resume"
)
