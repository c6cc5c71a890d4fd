// Package e2e provides end-to-end integration tests for projectgate.
package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/projectgate/internal/adapters/workspace/memory"
	"github.com/jbctechsolutions/projectgate/internal/application"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/config"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/logging"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/testutil"
	"github.com/jbctechsolutions/projectgate/internal/presentation/api"
	"github.com/jbctechsolutions/projectgate/internal/presentation/cli/commands"
)

// executeCommand executes a cobra command with the given args and captures output.
func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// TestE2E_CLICommands tests CLI commands that need no running gateway.
func TestE2E_CLICommands(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"version", []string{"version"}, false},
		{"version short", []string{"version", "--short"}, false},
		{"version json", []string{"version", "-o", "json"}, false},
		{"help", []string{"--help"}, false},
		{"help serve", []string{"serve", "--help"}, false},
		{"help shell", []string{"shell", "--help"}, false},
		{"sync missing args", []string{"sync"}, true},
		{"versions create missing args", []string{"versions", "create"}, true},
		{"unknown command", []string{"teleport"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(commands.NewRootCmd(), tt.args...)
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// remoteStore records the bodies uploaded per project.
type remoteStore struct {
	mu      sync.Mutex
	uploads map[string][][]byte
}

func (r *remoteStore) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	id := strings.TrimPrefix(req.URL.Path, "/projects/")
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	r.uploads[id] = append(r.uploads[id], body)
	r.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (r *remoteStore) last(id string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.uploads[id]); n > 0 {
		return r.uploads[id][n-1]
	}
	return nil
}

type gateway struct {
	container *application.Container
	api       *httptest.Server
}

func startGateway(t *testing.T, cfg *config.Config) *gateway {
	t.Helper()
	c, err := application.NewContainer(cfg, false)
	testutil.AssertNoError(t, err)

	s := api.New(api.Config{MetricsPath: "/metrics"}, c.Projects(), memory.Codec{}, c.Gatherer(), logging.Discard())
	return &gateway{container: c, api: httptest.NewServer(s.Handler())}
}

func (g *gateway) stop(t *testing.T) {
	t.Helper()
	g.api.Close()
	testutil.AssertNoError(t, g.container.Close())
}

func (g *gateway) call(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, g.api.URL+path, r)
	testutil.AssertNoError(t, err)
	resp, err := g.api.Client().Do(req)
	testutil.AssertNoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	testutil.AssertNoError(t, err)
	return resp.StatusCode, data
}

// TestE2E_EditSyncRestart drives two clients through the admin API, syncs
// to a remote, restarts the gateway and checks that state survived.
func TestE2E_EditSyncRestart(t *testing.T) {
	remote := &remoteStore{uploads: make(map[string][][]byte)}
	remoteSrv := httptest.NewServer(remote)
	defer remoteSrv.Close()

	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.Logging.Level = "error"
	cfg.Storage.Path = filepath.Join(dir, "gate.db")
	cfg.Sync.DebounceDelay = 50 * time.Millisecond
	cfg.Remote.Kind = config.RemoteKindHTTP
	cfg.Remote.Endpoint = remoteSrv.URL

	g := startGateway(t, cfg)

	status, _ := g.call(t, http.MethodPost, "/projects/atlas", "")
	testutil.AssertEqual(t, status, http.StatusCreated)
	status, _ = g.call(t, http.MethodPut, "/projects/atlas/sync", "")
	testutil.AssertEqual(t, status, http.StatusOK)

	edits := []struct {
		scope string
		body  string
	}{
		{"alice", `{"kind":"add","args":{"id":"a","name":"alpha"}}`},
		{"bob", `{"kind":"add","args":{"id":"b","name":"beta"}}`},
		{"alice", `{"kind":"translate","args":{"ids":["a"],"dx":3,"dy":4}}`},
		{"bob", `{"kind":"rename","args":{"id":"b","name":"bravo"}}`},
	}
	for _, e := range edits {
		status, data := g.call(t, http.MethodPost, "/projects/atlas/commands?scope="+e.scope, e.body)
		if status != http.StatusOK {
			t.Fatalf("apply %s for %s: %d %s", e.body, e.scope, status, data)
		}
	}

	// Undo is per client: bob's rename is undone, alice's move stays.
	status, _ = g.call(t, http.MethodPost, "/projects/atlas/undo?scope=bob", "")
	testutil.AssertEqual(t, status, http.StatusOK)

	// The debounced automatic sync uploads the final state.
	testutil.Eventually(t, 3*time.Second, func() bool {
		body := remote.last("atlas")
		return bytes.Contains(body, []byte(`"name":"beta"`)) && bytes.Contains(body, []byte(`"x":3`))
	})
	testutil.Eventually(t, 3*time.Second, func() bool {
		status, data := g.call(t, http.MethodGet, "/projects/atlas/sync", "")
		return status == http.StatusOK && strings.Contains(string(data), `"SYNCED"`)
	})

	status, _ = g.call(t, http.MethodPost, "/projects/atlas/versions", `{"label":"1"}`)
	testutil.AssertEqual(t, status, http.StatusCreated)

	status, data := g.call(t, http.MethodGet, "/metrics", "")
	testutil.AssertEqual(t, status, http.StatusOK)
	if !bytes.Contains(data, []byte("projectgate_")) {
		t.Error("metrics should be exported")
	}

	g.stop(t)

	// A fresh gateway on the same database sees the saved state.
	g = startGateway(t, cfg)
	defer g.stop(t)

	status, _ = g.call(t, http.MethodPost, "/projects/atlas", "")
	testutil.AssertEqual(t, status, http.StatusCreated)

	status, data = g.call(t, http.MethodGet, "/projects/atlas/versions/current", "")
	testutil.AssertEqual(t, status, http.StatusOK)
	var current struct {
		Nodes []memory.Node `json:"nodes"`
	}
	testutil.AssertNoError(t, json.Unmarshal(data, &current))
	testutil.AssertEqual(t, len(current.Nodes), 2)
	testutil.AssertEqual(t, current.Nodes[0], memory.Node{ID: "a", Name: "alpha", X: 3, Y: 4})
	testutil.AssertEqual(t, current.Nodes[1].Name, "beta")

	// Histories do not survive a restart.
	status, _ = g.call(t, http.MethodPost, "/projects/atlas/undo?scope=alice", "")
	testutil.AssertEqual(t, status, http.StatusConflict)

	status, _ = g.call(t, http.MethodGet, "/projects/atlas/versions/v1", "")
	testutil.AssertEqual(t, status, http.StatusOK)
}

// TestE2E_WatchImport drops a project file into the watch directory and
// expects the open project to pick it up.
func TestE2E_WatchImport(t *testing.T) {
	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.Logging.Level = "error"
	cfg.Storage.Path = filepath.Join(dir, "gate.db")
	cfg.Storage.WatchDir = filepath.Join(dir, "inbox")
	cfg.Sync.DebounceDelay = 0

	g := startGateway(t, cfg)
	defer g.stop(t)

	ctx := t.Context()
	testutil.AssertNoError(t, g.container.StartWatching(ctx))

	status, _ := g.call(t, http.MethodPost, "/projects/atlas", "")
	testutil.AssertEqual(t, status, http.StatusCreated)
	g.call(t, http.MethodPost, "/projects/atlas/commands?scope=alice", `{"kind":"add","args":{"id":"old"}}`)

	file := `{"format":1,"project":"atlas","nodes":[{"id":"x","name":"imported"}]}`
	testutil.AssertNoError(t, os.WriteFile(filepath.Join(cfg.Storage.WatchDir, "atlas.json"), []byte(file), 0644))

	testutil.Eventually(t, 3*time.Second, func() bool {
		_, data := g.call(t, http.MethodGet, "/projects/atlas/versions/current", "")
		return bytes.Contains(data, []byte(`"imported"`)) && !bytes.Contains(data, []byte(`"old"`))
	})

	// The import dropped the edit history.
	status, _ = g.call(t, http.MethodPost, "/projects/atlas/undo?scope=alice", "")
	testutil.AssertEqual(t, status, http.StatusConflict)
}
