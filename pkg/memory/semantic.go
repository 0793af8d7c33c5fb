package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"golang.org/x/sync/errgroup"

	"github.com/troupe-ai/troupe/pkg/llms"
	"github.com/troupe-ai/troupe/pkg/logger"
	"github.com/troupe-ai/troupe/pkg/utils"
)

// Document content returned by name is capped at this many characters.
const maxDocumentContentLength = 10000

// Document is one ingested document, kept whole for by-name retrieval.
type Document struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

// SemanticMemory stores documents ingested from local files and web
// pages and retrieves passages relevant to a query via an embedded
// vector index.
type SemanticMemory struct {
	embedder   llms.Embedder
	db         *chromem.DB
	collection *chromem.Collection

	documents map[string]Document
	docOrder  []string

	ingestedPaths map[string]bool
	pathOrder     []string
	ingestedURLs  map[string]bool
	urlOrder      []string

	chunkSize int
}

// NewSemanticMemory creates a semantic memory backed by an in-memory
// vector collection. Embeddings come from the given embedder.
func NewSemanticMemory(embedder llms.Embedder) (*SemanticMemory, error) {
	db := chromem.NewDB()

	embedFn := chromem.EmbeddingFunc(func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	})
	collection, err := db.GetOrCreateCollection("semantic-memory", nil, embedFn)
	if err != nil {
		return nil, fmt.Errorf("creating vector collection: %w", err)
	}

	return &SemanticMemory{
		embedder:      embedder,
		db:            db,
		collection:    collection,
		documents:     make(map[string]Document),
		ingestedPaths: make(map[string]bool),
		ingestedURLs:  make(map[string]bool),
		chunkSize:     defaultChunkSize,
	}, nil
}

// AddDocument ingests raw content under a name: the content is
// sanitized, stored whole, chunked and indexed. Re-adding a name
// replaces its previous index entries.
func (m *SemanticMemory) AddDocument(ctx context.Context, name, content, source string) error {
	content = utils.SanitizeRawString(content, 0)
	if strings.TrimSpace(content) == "" {
		logger.GetLogger().Debug("skipping empty document", "name", name)
		return nil
	}

	if _, exists := m.documents[name]; exists {
		if err := m.collection.Delete(ctx, map[string]string{"name": name}, nil); err != nil {
			return fmt.Errorf("replacing document %q: %w", name, err)
		}
	} else {
		m.docOrder = append(m.docOrder, name)
	}
	m.documents[name] = Document{Name: name, Content: content, Source: source}

	chunks := chunkByLines(content, m.chunkSize)
	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("%s#%d", name, chunk.Index),
			Content: chunk.Content,
			Metadata: map[string]string{
				"name":   name,
				"source": source,
			},
		}
	}
	// Single-threaded embedding keeps ingestion order deterministic.
	if err := m.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("indexing document %q: %w", name, err)
	}
	return nil
}

// AddDocumentPath ingests one local file. Paths already ingested are
// skipped.
func (m *SemanticMemory) AddDocumentPath(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if m.ingestedPaths[abs] {
		return nil
	}

	content, err := extractFileContent(ctx, abs)
	if err != nil {
		return err
	}
	if err := m.AddDocument(ctx, filepath.Base(abs), content, abs); err != nil {
		return err
	}

	m.ingestedPaths[abs] = true
	m.pathOrder = append(m.pathOrder, abs)
	return nil
}

// AddDocumentsPath ingests every supported file directly under a
// folder. The folder itself is remembered so re-adding it is a no-op.
func (m *SemanticMemory) AddDocumentsPath(ctx context.Context, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if m.ingestedPaths[abs] {
		return nil
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return fmt.Errorf("reading documents folder %s: %w", abs, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !supportedExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if err := m.AddDocumentPath(ctx, filepath.Join(abs, name)); err != nil {
			return err
		}
	}

	m.ingestedPaths[abs] = true
	m.pathOrder = append(m.pathOrder, abs)
	return nil
}

// AddWebURL ingests one web page. URLs already ingested are skipped.
// Page documents are named by a fresh id; the URL is kept as source.
func (m *SemanticMemory) AddWebURL(ctx context.Context, url string) error {
	if m.ingestedURLs[url] {
		return nil
	}

	text, err := fetchWebPage(ctx, url)
	if err != nil {
		return err
	}
	if err := m.AddDocument(ctx, uuid.NewString(), text, url); err != nil {
		return err
	}

	m.ingestedURLs[url] = true
	m.urlOrder = append(m.urlOrder, url)
	return nil
}

// AddWebURLs ingests several pages, fetching them concurrently but
// indexing in argument order.
func (m *SemanticMemory) AddWebURLs(ctx context.Context, urls []string) error {
	pending := make([]string, 0, len(urls))
	for _, url := range urls {
		if !m.ingestedURLs[url] {
			pending = append(pending, url)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	texts := make([]string, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	for i, url := range pending {
		i, url := i, url
		g.Go(func() error {
			text, err := fetchWebPage(gctx, url)
			if err != nil {
				return err
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, url := range pending {
		if err := m.AddDocument(ctx, uuid.NewString(), texts[i], url); err != nil {
			return err
		}
		m.ingestedURLs[url] = true
		m.urlOrder = append(m.urlOrder, url)
	}
	return nil
}

// RetrieveRelevant returns up to topK passages relevant to the query,
// each formatted with its source and similarity score.
func (m *SemanticMemory) RetrieveRelevant(ctx context.Context, query string, topK int) ([]string, error) {
	count := m.collection.Count()
	if count == 0 || topK <= 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := m.collection.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying semantic memory: %w", err)
	}

	out := make([]string, len(results))
	for i, r := range results {
		out[i] = fmt.Sprintf("SOURCE: %s\nSIMILARITY SCORE: %.2f\nRELEVANT CONTENT: %s",
			r.Metadata["source"], r.Similarity, r.Content)
	}
	return out, nil
}

// RetrieveDocumentContentByName returns a document's content, capped
// at a display limit, and whether the document exists.
func (m *SemanticMemory) RetrieveDocumentContentByName(name string) (string, bool) {
	doc, ok := m.documents[name]
	if !ok {
		return "", false
	}
	return utils.BreakTextAtLength(doc.Content, maxDocumentContentLength), true
}

// ListDocumentsNames returns the names of all ingested documents in
// ingestion order.
func (m *SemanticMemory) ListDocumentsNames() []string {
	out := make([]string, len(m.docOrder))
	copy(out, m.docOrder)
	return out
}

// SemanticState is the serializable form of a semantic memory.
type SemanticState struct {
	DocumentsPaths []string   `json:"documents_paths"`
	WebURLs        []string   `json:"web_urls"`
	Documents      []Document `json:"documents"`
}

// EncodeState returns the serializable form of the memory. Documents
// are stored whole; the vector index is rebuilt on decode.
func (m *SemanticMemory) EncodeState() SemanticState {
	state := SemanticState{
		DocumentsPaths: append([]string(nil), m.pathOrder...),
		WebURLs:        append([]string(nil), m.urlOrder...),
	}
	for _, name := range m.docOrder {
		state.Documents = append(state.Documents, m.documents[name])
	}
	return state
}

// DecodeState replaces the memory's contents with a previously encoded
// state, re-indexing every document.
func (m *SemanticMemory) DecodeState(ctx context.Context, state SemanticState) error {
	if err := m.db.DeleteCollection("semantic-memory"); err != nil {
		return fmt.Errorf("resetting vector collection: %w", err)
	}
	embedFn := chromem.EmbeddingFunc(func(ctx context.Context, text string) ([]float32, error) {
		return m.embedder.Embed(ctx, text)
	})
	collection, err := m.db.GetOrCreateCollection("semantic-memory", nil, embedFn)
	if err != nil {
		return fmt.Errorf("recreating vector collection: %w", err)
	}
	m.collection = collection

	m.documents = make(map[string]Document)
	m.docOrder = nil
	m.ingestedPaths = make(map[string]bool)
	m.pathOrder = nil
	m.ingestedURLs = make(map[string]bool)
	m.urlOrder = nil

	for _, doc := range state.Documents {
		if err := m.AddDocument(ctx, doc.Name, doc.Content, doc.Source); err != nil {
			return err
		}
	}
	for _, path := range state.DocumentsPaths {
		m.ingestedPaths[path] = true
		m.pathOrder = append(m.pathOrder, path)
	}
	for _, url := range state.WebURLs {
		m.ingestedURLs[url] = true
		m.urlOrder = append(m.urlOrder, url)
	}
	return nil
}
