package servicediscover

import (
	"testing"

	"smallbiznis-reward/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestNewRegistration(t *testing.T) {
	cfg := &config.Config{AppName: "reward", AppEnv: "staging", NodeID: 2}
	cfg.Server.Addr = ":8080"
	cfg.Consul.ServiceHost = "10.0.0.5"

	reg, err := NewRegistration(cfg)
	require.NoError(t, err)
	require.Equal(t, "reward-2", reg.ID)
	require.Equal(t, "reward", reg.Name)
	require.Equal(t, 8080, reg.Port)
	require.Equal(t, "http://10.0.0.5:8080/readyz", reg.Check.HTTP)

	cfg.Server.Addr = "8080"
	_, err = NewRegistration(cfg)
	require.Error(t, err)
}
