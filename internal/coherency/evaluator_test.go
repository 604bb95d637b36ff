package coherency

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remembrance-oracle/oracle-core/internal/config"
	"github.com/remembrance-oracle/oracle-core/internal/sandbox"
	"github.com/remembrance-oracle/oracle-core/internal/types"
)

func defaultWeights() config.CoherencyWeights {
	return config.DefaultConfig().Coherency.Weights
}

func TestEvaluate_CleanCodeWithPassingTest(t *testing.T) {
	e := New(defaultWeights(), false, sandbox.New())
	defer e.Close()

	code := `package main

func Add(a, b int) int {
	return a + b
}
`
	testCode := `func RunTest() (bool, string) {
	if Add(2, 3) != 5 {
		return false, "expected 5"
	}
	return true, "ok"
}
`
	res, err := e.Evaluate(context.Background(), Input{
		Code:        code,
		Language:    types.LanguageGo,
		TestCode:    testCode,
		Description: "add two integers",
	})
	require.NoError(t, err)
	assert.True(t, res.CovenantSealed)
	assert.Equal(t, 1.0, res.CoherencyScore.Breakdown.Correctness)
	assert.Greater(t, res.CoherencyScore.Total, 0.5)
}

func TestEvaluate_SQLInjectionBlocksCovenant(t *testing.T) {
	e := New(defaultWeights(), false, sandbox.New())
	defer e.Close()

	code := `package main

func Query(db *DB, name string) {
	db.Exec("SELECT * FROM users WHERE name = '" + name + "'")
}
`
	res, err := e.Evaluate(context.Background(), Input{Code: code, Language: types.LanguageGo})
	require.NoError(t, err)
	assert.False(t, res.CovenantSealed)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Violations)
}

func TestEvaluate_EmptyCodeUnknownLanguageFails(t *testing.T) {
	e := New(defaultWeights(), false, sandbox.New())
	defer e.Close()

	_, err := e.Evaluate(context.Background(), Input{Code: "   "})
	require.Error(t, err)
	var failure *EvaluationFailure
	assert.ErrorAs(t, err, &failure)
}

func TestEvaluate_NestingDimensionPenalizesDeepNesting(t *testing.T) {
	e := New(defaultWeights(), false, sandbox.New())
	defer e.Close()

	shallow := `package main
func F(x int) int {
	if x > 0 {
		return x
	}
	return 0
}
`
	deep := `package main
func F(x int) int {
	if x > 0 {
		if x > 1 {
			if x > 2 {
				if x > 3 {
					if x > 4 {
						return x
					}
				}
			}
		}
	}
	return 0
}
`
	shallowRes, err := e.Evaluate(context.Background(), Input{Code: shallow, Language: types.LanguageGo})
	require.NoError(t, err)
	deepRes, err := e.Evaluate(context.Background(), Input{Code: deep, Language: types.LanguageGo})
	require.NoError(t, err)

	assert.Greater(t, shallowRes.CoherencyScore.Breakdown.Nesting, deepRes.CoherencyScore.Breakdown.Nesting)
}

func TestCheckCovenant_CatastrophicRegex(t *testing.T) {
	violations := checkCovenant(`pattern := "(.*)+"`)
	require.NotEmpty(t, violations)
	assert.Equal(t, SeverityMedium, violations[0].Severity)
}

func TestSealed_StrictModeBlocksHigh(t *testing.T) {
	violations := []Violation{{Rule: "hardcoded-secret", Severity: SeverityHigh}}
	assert.True(t, sealed(violations, false))
	assert.False(t, sealed(violations, true))
}
