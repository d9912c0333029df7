package utils_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yoki/data-agency/internal/utils"
)

func TestCountTokens(t *testing.T) {
	assert.Equal(t, 0, utils.CountTokens(""))
	assert.Equal(t, 1, utils.CountTokens("hi"))
	assert.GreaterOrEqual(t, utils.CountTokens(strings.Repeat("a", 4000)), 900)
}

func TestTruncateToTokenLimit(t *testing.T) {
	text := strings.Repeat("abcd ", 1000)
	trunc := utils.TruncateToTokenLimit(text, 300)
	assert.LessOrEqual(t, utils.CountTokens(trunc), 310)
	assert.Contains(t, trunc, "truncated")

	assert.Equal(t, "short", utils.TruncateToTokenLimit("short", 300))
	assert.Empty(t, utils.TruncateToTokenLimit("anything", 0))
}
