package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`"Planning a trip"`, "Planning a trip"},
		{"Recipe: chocolate cake", "Recipe chocolate cake"},
		{"  spaced   out\n\ttitle  ", "spaced out title"},
		{"“Curly quotes” and ‘more’", "Curly quotes and more"},
		{`"'":`, DefaultTitle},
		{"", DefaultTitle},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, CleanTitle(tt.raw), "raw=%q", tt.raw)
	}
}

func TestCleanTitleTruncates(t *testing.T) {
	long := strings.Repeat("a", 200)
	got := CleanTitle(long)
	require.Len(t, []rune(got), 80)
}

func TestCleanTitleTruncatesTrimsTrailingSpace(t *testing.T) {
	raw := strings.Repeat("word ", 20) + "tail"
	got := CleanTitle(raw)
	require.LessOrEqual(t, len([]rune(got)), 80)
	require.Equal(t, got, strings.TrimSpace(got))
}
