package secretmanager

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProvideVault(t *testing.T) {
	t.Setenv("VAULT_ADDR", "")
	_, err := ProvideVault()
	require.Error(t, err)

	t.Setenv("VAULT_ADDR", "http://vault:8200")
	client, err := ProvideVault()
	require.NoError(t, err)
	require.NotNil(t, client)
}
