package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    map[string]any
		wantErr bool
	}{
		{
			name: "bare object",
			text: `{"a": 1}`,
			want: map[string]any{"a": float64(1)},
		},
		{
			name: "object with surrounding prose",
			text: "Sure, here it is:\n{\"a\": \"b\"}\nHope that helps!",
			want: map[string]any{"a": "b"},
		},
		{
			name: "markdown fenced",
			text: "```json\n{\"action\": {\"type\": \"DONE\"}}\n```",
			want: map[string]any{"action": map[string]any{"type": "DONE"}},
		},
		{
			name:    "no JSON at all",
			text:    "I cannot answer that.",
			wantErr: true,
		},
		{
			name:    "unterminated object",
			text:    `{"a": 1`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			err := ExtractJSON(tt.text, &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeRawString(t *testing.T) {
	assert.Equal(t, "hello world", SanitizeRawString("hel\x00lo wor\x07ld", 0))
	assert.Equal(t, "tab\tand\nnewline", SanitizeRawString("tab\tand\nnewline", 0))
	assert.Equal(t, "abc", SanitizeRawString("abcdef", 3))

	// Invalid UTF-8 bytes are dropped, not replaced.
	assert.Equal(t, "ab", SanitizeRawString("a\xffb", 0))
}

func TestBreakTextAtLength(t *testing.T) {
	assert.Equal(t, "short", BreakTextAtLength("short", 100))
	assert.Equal(t, "short", BreakTextAtLength("short", 0))
	assert.Equal(t, "long (...)", BreakTextAtLength("long text here", 4))
}

func TestHashJSONStable(t *testing.T) {
	a := map[string]any{"x": 1, "y": []string{"p", "q"}}
	b := map[string]any{"y": []string{"p", "q"}, "x": 1}

	ha, err := HashJSON(a)
	require.NoError(t, err)
	hb, err := HashJSON(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}

func TestDedent(t *testing.T) {
	in := "\n    line one\n      line two\n    line three\n"
	assert.Equal(t, "line one\n  line two\nline three", Dedent(in))
}

func TestPrettyDatetime(t *testing.T) {
	assert.Equal(t, "2024-03-01 10:30", PrettyDatetime("2024-03-01T10:30:00"))
	assert.Equal(t, "bogus", PrettyDatetime("bogus"))
}
