package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsociety/runtime/pkg/apperr"
)

func TestRunJavascript_BlocksForbiddenIdentifiers(t *testing.T) {
	for _, code := range []string{"process.exit(1)", "require('fs')", "globalThis.x", "eval('1')"} {
		_, err := runJavascriptHandler(context.Background(), Call{Args: map[string]any{"code": code}})
		assert.True(t, apperr.Is(err, apperr.BlockedCode), "code=%q", code)
	}
}

func TestRunJavascript_EvaluatesArithmetic(t *testing.T) {
	result, err := runJavascriptHandler(context.Background(), Call{Args: map[string]any{"code": "2 + 3 * 4"}})
	require.NoError(t, err)
	assert.Equal(t, float64(14), result)
}

func TestRunJavascript_EvaluatesParenthesizedExpression(t *testing.T) {
	result, err := runJavascriptHandler(context.Background(), Call{Args: map[string]any{"code": "(2 + 3) * 4"}})
	require.NoError(t, err)
	assert.Equal(t, float64(20), result)
}

func TestRunJavascript_StringLiteral(t *testing.T) {
	result, err := runJavascriptHandler(context.Background(), Call{Args: map[string]any{"code": `"hello"`}})
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestRunJavascript_InvalidExpressionRejected(t *testing.T) {
	_, err := runJavascriptHandler(context.Background(), Call{Args: map[string]any{"code": "2 +"}})
	assert.True(t, apperr.Is(err, apperr.InvalidArgs))
}

func TestRunJavascript_DivideByZero(t *testing.T) {
	_, err := runJavascriptHandler(context.Background(), Call{Args: map[string]any{"code": "1 / 0"}})
	assert.True(t, apperr.Is(err, apperr.InvalidArgs))
}
