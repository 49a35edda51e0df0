package config

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	require.Equal(t, 10, cfg.Reward.TopN)
	require.Equal(t, "like_count * 2 + view_count", cfg.Reward.ScoreExpression)
	require.Equal(t, 6*time.Hour, cfg.Reward.RankingCacheTTL)
	require.Equal(t, "postgres", cfg.Database.Type)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REWARD_TOP_N", "3")
	t.Setenv("REWARD_TIMEZONE", "Asia/Jakarta")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	require.Equal(t, 3, cfg.Reward.TopN)
	require.Equal(t, "Asia/Jakarta", cfg.Reward.Location().String())
}

func TestLoadEnvWithoutDefault(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_PASSWORD", "s3cret")
	t.Setenv("CONSUL_ADDR", "consul:8500")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	require.Equal(t, "s3cret", cfg.Database.Password)
	require.Equal(t, "consul:8500", cfg.Consul.Addr)
}

func TestLocationFallback(t *testing.T) {
	require.Equal(t, time.UTC, Reward{}.Location())
	require.Equal(t, time.UTC, Reward{Timezone: "Mars/Olympus"}.Location())
}
