package llms

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/troupe-ai/troupe/pkg/protocol"
	"github.com/troupe-ai/troupe/pkg/utils"
)

// ResponseCache persists model responses across processes, keyed by a
// content hash of the full request. It is independent of the
// simulation trace cache: this one dedupes identical API calls, the
// trace cache replays whole transactions.
type ResponseCache struct {
	mu      sync.Mutex
	path    string
	entries map[string]protocol.Message
}

// NewResponseCache loads the cache file at path if it exists.
func NewResponseCache(path string) (*ResponseCache, error) {
	c := &ResponseCache{
		path:    path,
		entries: make(map[string]protocol.Message),
	}

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening response cache %s: %w", path, err)
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(&c.entries); err != nil {
		return nil, fmt.Errorf("decoding response cache %s: %w", path, err)
	}
	return c, nil
}

// CacheKey builds the lookup key for a request: a hash over the model,
// the call parameters and every message.
func CacheKey(messages []protocol.Message, params Params) (string, error) {
	return utils.HashJSON(map[string]any{
		"model":    params.Model,
		"params":   params,
		"messages": messages,
	})
}

func (c *ResponseCache) Get(key string) (*protocol.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return &msg, true
}

// Put stores a response and flushes the cache to disk.
func (c *ResponseCache) Put(key string, msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = msg
	return c.save()
}

// save writes the full cache to a temp file and renames it over the
// cache path, so a crash mid-write never corrupts the file.
func (c *ResponseCache) save() error {
	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(c.entries); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding response cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.path)
}

func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
