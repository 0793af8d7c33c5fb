package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keywordEmbedder maps texts onto fixed axes by keyword, giving
// deterministic similarities without a model.
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "cat"):
		return []float32{1, 0, 0}, nil
	case strings.Contains(lower, "dog"):
		return []float32{0, 1, 0}, nil
	default:
		return []float32{0, 0, 1}, nil
	}
}

func newTestMemory(t *testing.T) *SemanticMemory {
	t.Helper()
	m, err := NewSemanticMemory(keywordEmbedder{})
	require.NoError(t, err)
	return m
}

func TestRetrieveRelevantUsesQuery(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, m.AddDocument(ctx, "cats.txt", "All about cats and their habits.", "cats.txt"))
	require.NoError(t, m.AddDocument(ctx, "dogs.txt", "All about dogs and their habits.", "dogs.txt"))

	results, err := m.RetrieveRelevant(ctx, "tell me about cats", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Contains(t, results[0], "SOURCE: cats.txt")
	assert.Contains(t, results[0], "SIMILARITY SCORE:")
	assert.Contains(t, results[0], "RELEVANT CONTENT:")
	assert.Contains(t, results[0], "cats")
}

func TestRetrieveRelevantEmptyMemory(t *testing.T) {
	m := newTestMemory(t)

	results, err := m.RetrieveRelevant(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveRelevantCapsTopK(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, m.AddDocument(ctx, "only.txt", "a single cat document", "only.txt"))

	results, err := m.RetrieveRelevant(ctx, "cat", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestAddDocumentsPathIdempotent(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("the cat file"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("the dog file"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.exe"), []byte("binary"), 0644))

	require.NoError(t, m.AddDocumentsPath(ctx, dir))
	assert.Equal(t, []string{"a.txt", "b.md"}, m.ListDocumentsNames())

	// Ingesting the same folder again changes nothing.
	require.NoError(t, m.AddDocumentsPath(ctx, dir))
	assert.Equal(t, []string{"a.txt", "b.md"}, m.ListDocumentsNames())
}

func TestRetrieveDocumentContentByName(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	long := strings.Repeat("cat line\n", 3000)
	require.NoError(t, m.AddDocument(ctx, "long.txt", long, "long.txt"))

	content, ok := m.RetrieveDocumentContentByName("long.txt")
	require.True(t, ok)
	assert.LessOrEqual(t, len(content), maxDocumentContentLength+10)
	assert.True(t, strings.HasSuffix(content, " (...)"))

	_, ok = m.RetrieveDocumentContentByName("missing.txt")
	assert.False(t, ok)
}

func TestAddDocumentSanitizes(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, m.AddDocument(ctx, "dirty.txt", "cat\x00 con\x07tent", "dirty.txt"))

	content, ok := m.RetrieveDocumentContentByName("dirty.txt")
	require.True(t, ok)
	assert.Equal(t, "cat content", content)
}

func TestSemanticEncodeDecodeRoundTrip(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, m.AddDocument(ctx, "cats.txt", "all about cats", "cats.txt"))
	require.NoError(t, m.AddDocument(ctx, "dogs.txt", "all about dogs", "dogs.txt"))

	state := m.EncodeState()

	restored := newTestMemory(t)
	require.NoError(t, restored.DecodeState(ctx, state))

	assert.Equal(t, m.ListDocumentsNames(), restored.ListDocumentsNames())

	results, err := restored.RetrieveRelevant(ctx, "cats", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0], "cats")
}

func TestChunkByLines(t *testing.T) {
	content := strings.Repeat("0123456789\n", 10)

	chunks := chunkByLines(content, 30)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), 33)
		assert.True(t, strings.HasSuffix(c.Content, "\n"))
		assert.Equal(t, len(chunks), c.Total)
	}

	single := chunkByLines("short", 100)
	require.Len(t, single, 1)
	assert.Equal(t, "short", single[0].Content)
}

func TestHTMLToText(t *testing.T) {
	page := `<html><head><style>body{}</style><script>x()</script></head>` +
		`<body><h1>Title</h1><p>Hello <b>world</b></p></body></html>`

	text := htmlToText(page)
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "Hello")
	assert.Contains(t, text, "world")
	assert.NotContains(t, text, "body{}")
	assert.NotContains(t, text, "x()")
}
