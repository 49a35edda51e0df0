package profiling

import (
	"testing"

	"smallbiznis-reward/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	cfg := &config.Config{AppName: "reward", AppEnv: "staging"}

	_, ok := NewConfig(cfg)
	require.False(t, ok)

	cfg.Pyroscope.Addr = "http://pyroscope:4040"
	pc, ok := NewConfig(cfg)
	require.True(t, ok)
	require.Equal(t, "reward", pc.ApplicationName)
	require.Equal(t, "http://pyroscope:4040", pc.ServerAddress)
	require.Equal(t, "staging", pc.Tags["env"])
}
