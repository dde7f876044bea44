package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spboyer/arena/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testCase   = models.TestCase{ID: "tc-1", Input: "Summarize the release notes", Context: "v1.2"}
	generators = []models.SelectedModel{
		{AssistantID: "a", ModelID: "m1", Provider: "openai", Model: "gpt-4o"},
		{AssistantID: "b", ModelID: "m2", Provider: "anthropic", Model: "claude"},
	}
)

func sampleOutputs() []models.ModelOutput {
	return []models.ModelOutput{
		{ModelID: "m1", ModelName: "gpt-4o", Output: "first", RubricScores: map[string]float64{}, Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{ModelID: "m2", ModelName: "claude", Output: "second", RubricScores: map[string]float64{}, Timestamp: time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC)},
	}
}

func TestGenerationKey(t *testing.T) {
	key, err := GenerationKey("mock", testCase, generators)
	require.NoError(t, err)
	assert.Len(t, key, 64)

	again, err := GenerationKey("mock", testCase, generators)
	require.NoError(t, err)
	assert.Equal(t, key, again, "keys are deterministic")
}

func TestGenerationKey_Changes(t *testing.T) {
	base, err := GenerationKey("mock", testCase, generators)
	require.NoError(t, err)

	otherCase := testCase
	otherCase.Context = "v1.3"

	reversed := []models.SelectedModel{generators[1], generators[0]}

	renamed := append([]models.SelectedModel(nil), generators...)
	renamed[0].Model = "gpt-4.1"

	tests := []struct {
		name       string
		engine     string
		tc         models.TestCase
		generators []models.SelectedModel
	}{
		{name: "engine", engine: "copilot-sdk", tc: testCase, generators: generators},
		{name: "test case context", engine: "mock", tc: otherCase, generators: generators},
		{name: "generator order", engine: "mock", tc: testCase, generators: reversed},
		{name: "model name", engine: "mock", tc: testCase, generators: renamed},
		{name: "fewer generators", engine: "mock", tc: testCase, generators: generators[:1]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := GenerationKey(tt.engine, tt.tc, tt.generators)
			require.NoError(t, err)
			assert.NotEqual(t, base, key)
		})
	}
}

func TestGenerationKey_NoHashCollision(t *testing.T) {
	// "ab" + "c" must not hash like "a" + "bc"
	k1, err := GenerationKey("ab", testCase, []models.SelectedModel{{ModelID: "c"}})
	require.NoError(t, err)
	k2, err := GenerationKey("a", testCase, []models.SelectedModel{{ModelID: "bc"}})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestCache_GetPut(t *testing.T) {
	c := New(t.TempDir())

	got, found := c.Get("key")
	assert.False(t, found)
	assert.Nil(t, got)

	require.NoError(t, c.Put("key", sampleOutputs()))

	got, found = c.Get("key")
	require.True(t, found)
	assert.Equal(t, sampleOutputs(), got)

	_, err := os.Stat(filepath.Join(c.Dir(), "key"+entryExt))
	assert.NoError(t, err, "entries are written compressed")
}

func TestCache_CorruptEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad"+entryExt), []byte("not zstd"), 0644))

	_, found := c.Get("bad")
	assert.False(t, found)
}

func TestCache_EmptyDir(t *testing.T) {
	c := New("")

	_, found := c.Get("any-key")
	assert.False(t, found)

	assert.NoError(t, c.Put("key", sampleOutputs()))
	assert.NoError(t, c.Clear())
}

func TestCache_Clear(t *testing.T) {
	t.Run("removes a valid cache directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "cache")
		c := New(dir)
		require.NoError(t, c.Put("key1", sampleOutputs()))
		require.NoError(t, c.Put("key2", sampleOutputs()))

		require.NoError(t, c.Clear())

		_, found := c.Get("key1")
		assert.False(t, found)
		_, err := os.Stat(dir)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("missing directory is fine", func(t *testing.T) {
		c := New(filepath.Join(t.TempDir(), "never-created"))
		assert.NoError(t, c.Clear())
	})

	t.Run("refuses to clear directory with subdirectories", func(t *testing.T) {
		dir := t.TempDir()
		c := New(dir)
		require.NoError(t, c.Put("key1", sampleOutputs()))
		require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0755))

		err := c.Clear()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "subdirectories")

		_, err = os.Stat(dir)
		assert.NoError(t, err)
	})

	t.Run("refuses to clear directory with other files", func(t *testing.T) {
		dir := t.TempDir()
		c := New(dir)
		require.NoError(t, c.Put("key1", sampleOutputs()))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("test"), 0644))

		err := c.Clear()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "non-cache files")
	})
}

func TestCache_ConcurrentOperations(t *testing.T) {
	c := New(t.TempDir())

	numGoroutines := 10
	numOperations := 20

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				key := fmt.Sprintf("key-%d-%d", id, j)
				assert.NoError(t, c.Put(key, sampleOutputs()))
				_, found := c.Get(key)
				assert.True(t, found)
			}
		}(i)
	}
	wg.Wait()

	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, numGoroutines*numOperations)
}
