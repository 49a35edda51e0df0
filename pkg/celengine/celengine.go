package celengine

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// Score variables available to a score expression.
const (
	VarLikeCount = "like_count"
	VarViewCount = "view_count"
)

// NewScoreEnv declares the integer variables a score expression may use.
func NewScoreEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable(VarLikeCount, cel.IntType),
		cel.Variable(VarViewCount, cel.IntType),
	)
}

func ValidateExpression(env *cel.Env, expr string) error {
	_, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return issues.Err()
	}
	return nil
}

// Scorer is a compiled integer expression over like and view counts.
// It is safe for concurrent use.
type Scorer struct {
	expr string
	prg  cel.Program
}

func NewScorer(expr string) (*Scorer, error) {
	env, err := NewScoreEnv()
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile score expression %q: %w", expr, issues.Err())
	}

	if !ast.OutputType().IsExactType(types.IntType) {
		return nil, fmt.Errorf("score expression %q must evaluate to int, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, err
	}

	return &Scorer{expr: expr, prg: prg}, nil
}

func (s *Scorer) Expression() string {
	return s.expr
}

func (s *Scorer) Score(likeCount, viewCount int64) (int64, error) {
	out, _, err := s.prg.Eval(map[string]any{
		VarLikeCount: likeCount,
		VarViewCount: viewCount,
	})
	if err != nil {
		return 0, err
	}

	v, ok := out.Value().(int64)
	if !ok {
		return 0, fmt.Errorf("expected int from score expression, got %T (%v)", out.Value(), out.Value())
	}

	return v, nil
}
