package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/spboyer/arena/internal/models"
)

const entryExt = ".json.zst"

// Cache stores generated outputs so a run can be re-scored without asking
// the models again. Entries are zstd-compressed JSON files.
type Cache struct {
	dir string
	mu  sync.Mutex
}

// New creates a new cache instance with the specified directory
func New(dir string) *Cache {
	return &Cache{dir: dir}
}

// Dir returns the directory entries are written to.
func (c *Cache) Dir() string {
	return c.dir
}

// GenerationKey identifies one generate call. The key is based on:
// - the engine type
// - the generators, in order, since the outputs follow that order
// - the test case (id, input, context)
func GenerationKey(engine string, tc models.TestCase, generators []models.SelectedModel) (string, error) {
	h := sha256.New()

	if err := writeString(h, engine); err != nil {
		return "", err
	}

	for _, g := range generators {
		if err := writeString(h, g.ModelID); err != nil {
			return "", err
		}
		if err := writeString(h, g.Provider); err != nil {
			return "", err
		}
		if err := writeString(h, g.Model); err != nil {
			return "", err
		}
	}

	tcJSON, err := json.Marshal(tc)
	if err != nil {
		return "", fmt.Errorf("marshaling test case: %w", err)
	}
	if _, err := h.Write(tcJSON); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get retrieves cached outputs if they exist
func (c *Cache) Get(key string) ([]models.ModelOutput, bool) {
	if c.dir == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	compressed, err := os.ReadFile(c.cachePath(key))
	if err != nil {
		// Cache miss
		return nil, false
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, false
	}
	defer dec.Close()

	data, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		// Corrupt entry, treat as miss
		return nil, false
	}

	var outputs []models.ModelOutput
	if err := json.Unmarshal(data, &outputs); err != nil {
		return nil, false
	}

	return outputs, true
}

// Put stores the outputs of a generate call
func (c *Cache) Put(key string, outputs []models.ModelOutput) error {
	if c.dir == "" {
		return nil
	}

	data, err := json.Marshal(outputs)
	if err != nil {
		return fmt.Errorf("marshaling outputs: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("creating zstd encoder: %w", err)
	}
	compressed := enc.EncodeAll(data, nil)
	if err := enc.Close(); err != nil {
		return fmt.Errorf("closing zstd encoder: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	if err := os.WriteFile(c.cachePath(key), compressed, 0644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}

	return nil
}

// Clear removes all cached entries
func (c *Cache) Clear() error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.dir); os.IsNotExist(err) {
		return nil
	}

	// only remove directories that look like ours
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			return fmt.Errorf("cache directory contains subdirectories - refusing to delete for safety")
		}
		if !strings.HasSuffix(entry.Name(), entryExt) {
			return fmt.Errorf("cache directory contains non-cache files - refusing to delete for safety")
		}
	}

	return os.RemoveAll(c.dir)
}

func (c *Cache) cachePath(key string) string {
	return filepath.Join(c.dir, key+entryExt)
}

func writeString(w io.Writer, s string) error {
	// null byte delimiter prevents collisions between adjacent fields
	_, err := w.Write([]byte(s + "\x00"))
	return err
}
