package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/poiesic/newsrag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTextServer fakes an OpenAI-compatible embeddings endpoint returning 384-dimensional vectors.
func newTextServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			v := make([]float32, 384)
			v[0], v[1] = 1, float32(len(req.Input[i]))
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": v}
		}
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type cliEnv struct {
	db       string
	textHost string
	extra    []string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	return &cliEnv{
		db:       filepath.Join(t.TempDir(), "db"),
		textHost: newTextServer(t).URL,
	}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut

	full := append([]string{"newsrag", "--log-level", "error", "--db", e.db, "--text-host", e.textHost}, e.extra...)
	err := app.RunContext(context.Background(), append(full, args...))
	return out.String(), err
}

func writeArticles(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "articles.jsonl")
	lines := []string{
		`{"id": "a", "title": "Storm hits the coast", "content": "Heavy rain", "link": "https://news.example.com/a"}`,
		`{"id": "b", "title": "Markets calm", "content": "Stocks flat", "link": "https://news.example.com/b"}`,
		`{"id": "c", "title": "La universidad abre", "content": "Nuevos cursos", "link": "https://news.example.com/c"}`,
		`{"title": "", "content": "rejected"}`,
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644))
	return path
}

func TestSetupLogger_InvalidLevel(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "--log-level", "verbose", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestCommandFlags(t *testing.T) {
	app := newApp()
	commands := make(map[string]bool)
	for _, cmd := range app.Commands {
		commands[cmd.Name] = true
	}
	for _, name := range []string{"serve", "import", "embed-text", "embed-images", "search", "stats", "validate-embeddings"} {
		assert.True(t, commands[name], name)
	}

	var dbEnv []string
	for _, flag := range app.Flags {
		if f, ok := flag.(interface{ GetEnvVars() []string }); ok && flag.Names()[0] == "db" {
			dbEnv = f.GetEnvVars()
		}
	}
	assert.Equal(t, []string{"NEWSRAG_DB"}, dbEnv)
}

func TestImportCommand_RequiresFile(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "import")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input file")
}

func TestWorkflow(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "import", writeArticles(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Read: 4, imported: 3, duplicates: 0, rejected: 1")

	out, err = env.run(t, "embed-text", "--batch-size", "2", "--retry-delay", "1ms")
	require.NoError(t, err)
	assert.Contains(t, out, "succeeded=3")

	out, err = env.run(t, "search", "--query", "storm", "--limit", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 2 results")

	_, err = env.run(t, "search")
	require.Error(t, err, "a query needs text or an image")

	out, err = env.run(t, "stats")
	require.NoError(t, err)
	var stats newsrag.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 3, stats.TextEmbeddings)
	require.NotNil(t, stats.LastTextPass)

	out, err = env.run(t, "validate-embeddings")
	require.NoError(t, err)
	assert.Contains(t, out, "Checked: 3, invalid: 0, deleted: 0")
}

func TestImportCommand_EmbedOnImport(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "import", "--embed", "--batch-size", "2", writeArticles(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Embedded: 3, failed: 0")
}

func TestSearchCommand_QueryCache(t *testing.T) {
	mr := miniredis.RunT(t)
	env := newCLIEnv(t)
	env.extra = []string{"--redis-url", "redis://" + mr.Addr()}

	_, err := env.run(t, "import", writeArticles(t))
	require.NoError(t, err)
	_, err = env.run(t, "embed-text", "--retry-delay", "1ms")
	require.NoError(t, err)

	out, err := env.run(t, "search", "--query", "storm", "--explain")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 3 results")
	assert.NotEmpty(t, mr.Keys(), "query embedding cached")
}

func TestOpenDatabase_UnreachableRedisIsSkipped(t *testing.T) {
	env := newCLIEnv(t)
	env.extra = []string{"--redis-url", "redis://127.0.0.1:1"}

	_, err := env.run(t, "stats")
	assert.NoError(t, err)
}
