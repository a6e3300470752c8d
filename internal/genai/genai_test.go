package genai

import (
	"strings"
	"testing"

	"github.com/scriptstash/scriptstash/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", "print('x')\n", "print('x')\n"},
		{"bare fence", "```\nprint('x')\n```", "print('x')\n"},
		{"language tag", "```python\nprint('x')\n```\n", "print('x')\n"},
		{"surrounding whitespace", "\n\n```python\nprint('x')\n```\n\n", "print('x')\n"},
		{"missing closing fence", "```python\nprint('x')", "print('x')\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestEnsureHeaderKeepsExisting(t *testing.T) {
	body := "# /// script\n" +
		"# description = \"counts lines\"\n" +
		"# dependencies = []\n" +
		"# ///\n" +
		"\n" +
		"print('x')\n"

	out, synthesized := EnsureHeader(body, Request{Name: "counter", Prompt: "count lines"})
	assert.False(t, synthesized)
	assert.Equal(t, body, out)
}

func TestEnsureHeaderSynthesizesWhenMissing(t *testing.T) {
	body := "print('x')\n"
	req := Request{
		Name:   "counter",
		Prompt: "count lines in files\nwith extra detail the description should not carry",
		Tags:   []string{"text"},
	}

	out, synthesized := EnsureHeader(body, req)
	require.True(t, synthesized)

	h, rest := metadata.Decode(out)
	require.NotNil(t, h)
	assert.Equal(t, "count lines in files", h.Description)
	assert.Equal(t, ">=3.12", h.RequiresRuntime)
	assert.Empty(t, h.Dependencies)
	assert.Equal(t, []string{"text"}, h.Tags)
	assert.Equal(t, body, rest)
}

func TestEnsureHeaderSynthesizesOnMalformedBlock(t *testing.T) {
	body := "# /// script\n" +
		"# description = \"unterminated\n" +
		"# ///\n" +
		"print('x')\n"

	out, synthesized := EnsureHeader(body, Request{Name: "x", Prompt: "do things"})
	assert.True(t, synthesized)

	h, _ := metadata.Decode(out)
	require.NotNil(t, h)
	assert.Equal(t, "do things", h.Description)
}

func TestSummarizeTruncates(t *testing.T) {
	long := strings.Repeat("a", 200)
	got := summarize(long)
	assert.Len(t, got, 120)
	assert.True(t, strings.HasSuffix(got, "..."))
}
