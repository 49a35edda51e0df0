package celengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScorerDefaultFormula(t *testing.T) {
	s, err := NewScorer("like_count * 2 + view_count")
	require.NoError(t, err)

	score, err := s.Score(5, 100)
	require.NoError(t, err)
	require.Equal(t, int64(110), score)

	score, err = s.Score(0, 0)
	require.NoError(t, err)
	require.Zero(t, score)
}

func TestScorerRejectsNonInt(t *testing.T) {
	_, err := NewScorer("like_count > view_count")
	require.Error(t, err)

	_, err = NewScorer("unknown_var + 1")
	require.Error(t, err)
}

func TestValidateExpression(t *testing.T) {
	env, err := NewScoreEnv()
	require.NoError(t, err)

	require.NoError(t, ValidateExpression(env, "view_count + like_count"))
	require.Error(t, ValidateExpression(env, "view_count +"))
}
