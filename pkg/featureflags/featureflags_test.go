package featureflags

import (
	"context"
	"errors"
	"testing"

	"smallbiznis-reward/pkg/config"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type failingSource struct{}

func (failingSource) GetEnvironmentFlags() (flagsmith.Flags, error) {
	return flagsmith.Flags{}, errors.New("flagsmith unreachable")
}

func TestEnabledFallback(t *testing.T) {
	ff := ProvideFeatureFlag(FeatureParams{Config: &config.Config{}})
	require.True(t, ff.Enabled(context.Background(), RewardAutoDistribution, true))
	require.False(t, ff.Enabled(context.Background(), RewardAutoDistribution, false))

	ff = &featureflag{client: failingSource{}}
	require.True(t, ff.Enabled(context.Background(), RewardAutoDistribution, true))
}
