package gen

import (
	"testing"

	"smallbiznis-reward/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestNewNode(t *testing.T) {
	node, err := NewNode(&config.Config{NodeID: 3})
	require.NoError(t, err)
	require.Equal(t, int64(3), node.Generate().Node())

	_, err = NewNode(&config.Config{NodeID: 5000})
	require.Error(t, err)
}
