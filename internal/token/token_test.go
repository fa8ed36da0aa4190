package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountGrowsWithText(t *testing.T) {
	assert.Equal(t, 0, Count(""))
	short := Count("hello world")
	long := Count(strings.Repeat("hello world ", 50))
	assert.Greater(t, short, 0)
	assert.Greater(t, long, short)
}

func TestTruncateShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 100))
}

func TestTruncateLongText(t *testing.T) {
	long := strings.Repeat("some words that take up tokens ", 100)
	out := Truncate(long, 20)

	assert.Less(t, len(out), len(long))
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.LessOrEqual(t, Count(out), 25)
}

func TestTruncateZeroBudget(t *testing.T) {
	out := Truncate("anything at all", 0)
	assert.LessOrEqual(t, len(out), len("..."))
}
