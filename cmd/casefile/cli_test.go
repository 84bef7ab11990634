package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/casefile/internal/config"
	"github.com/hpungsan/casefile/internal/kv"
	"github.com/hpungsan/casefile/internal/ops"
	"github.com/hpungsan/casefile/internal/remote"
	"github.com/hpungsan/casefile/internal/remote/remotetest"
	"github.com/hpungsan/casefile/internal/resolver"
)

// setupTestService builds a service over memory storage and a fake remote.
func setupTestService(t *testing.T, policy string) (*ops.Service, *remotetest.Fake) {
	t.Helper()
	cfg := config.DefaultConfig()
	if policy != "" {
		cfg.DuplicatePolicy = policy
	}
	fake := remotetest.New()
	svc, err := ops.New(ops.Deps{
		Store:  kv.NewMemory(),
		Remote: fake,
		Config: cfg,
		Sleep:  func(context.Context, time.Duration) {},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return svc, fake
}

// runCLI runs the app with args and returns what it wrote to stdout.
func runCLI(t *testing.T, ctx context.Context, svc *ops.Service, args ...string) (string, error) {
	t.Helper()
	app := newCLIApp(svc)

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.String()
	}()

	runErr := app.RunContext(ctx, append([]string{"casefile"}, args...))

	w.Close()
	os.Stdout = oldStdout
	return <-done, runErr
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

var itemArgs = []string{"--item-id=m1", "--conversation-id=conv-1", "--subject=Smith v. Jones update", "--sender=alice@smithlaw.com"}

func TestCLIFileAndStatus(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, "")

	out, err := runCLI(t, ctx, svc, append([]string{"status"}, itemArgs...)...)
	require.NoError(t, err)
	var res resolver.Resolution
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, resolver.StateUnfiled, res.State)

	out, err = runCLI(t, ctx, svc, append([]string{"file", "--case=c1", "--case-name=Smith"}, itemArgs...)...)
	require.NoError(t, err)
	var filed ops.FileOutput
	require.NoError(t, json.Unmarshal([]byte(out), &filed))
	assert.True(t, filed.Filed)
	require.NotNil(t, filed.Record)
	assert.Equal(t, "c1", filed.Record.CaseID)

	svc.Resolver().Forget("item:m1")
	out, err = runCLI(t, ctx, svc, append([]string{"status"}, itemArgs...)...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, resolver.StateFiled, res.State)
	assert.Equal(t, "c1", res.CaseID)

	out, err = runCLI(t, ctx, svc, append([]string{"status", "--html"}, itemArgs...)...)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<strong>filed</strong>")
}

func TestCLISuggest(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, "")
	cases := writeFile(t, "cases.json", `{"cases": [{"caseId": "c1", "name": "Smith v. Jones"}, {"id": 7, "title": "Acme merger"}]}`)

	out, err := runCLI(t, ctx, svc, append([]string{"suggest", "--cases=" + cases}, itemArgs...)...)
	require.NoError(t, err)
	var output ops.SuggestOutput
	require.NoError(t, json.Unmarshal([]byte(out), &output))
	require.NotEmpty(t, output.Suggestions)
	assert.Equal(t, "c1", output.Suggestions[0].CaseID)
	assert.Equal(t, "item:m1", output.ItemKey)

	out, err = runCLI(t, ctx, svc, append([]string{"suggest", "--html", "--cases=" + cases}, itemArgs...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "Smith v. Jones (c1)")
}

func TestCLIDeferred(t *testing.T) {
	ctx := context.Background()
	svc, fake := setupTestService(t, "warn")
	fake.AddDocument(remote.Document{ID: "d1", CaseID: "c1", Subject: "Smith v. Jones update"})

	out, err := runCLI(t, ctx, svc, append([]string{"file", "--case=c1"}, itemArgs...)...)
	require.NoError(t, err)
	var filed ops.FileOutput
	require.NoError(t, json.Unmarshal([]byte(out), &filed))
	require.False(t, filed.Filed)
	require.NotNil(t, filed.Deferred)
	id := filed.Deferred.ID

	out, err = runCLI(t, ctx, svc, "deferred", "list")
	require.NoError(t, err)
	var list ops.DeferredListOutput
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.Equal(t, 1, list.Total)

	out, err = runCLI(t, ctx, svc, "deferred", "confirm", id)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &filed))
	assert.True(t, filed.Filed)
	assert.Equal(t, 2, filed.Document.RevisionNumber)

	_, err = runCLI(t, ctx, svc, "deferred", "discard", id)
	assert.Error(t, err, "discarding a confirmed filing")
}

func TestCLIIntent(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, "")

	_, err := runCLI(t, ctx, svc, "intent", "set", "--conversation-id=conv-9", "--case=c1", "--auto-file")
	require.NoError(t, err)

	out, err := runCLI(t, ctx, svc, "intent", "get", "--conversation-id=conv-9")
	require.NoError(t, err)
	var output ops.IntentOutput
	require.NoError(t, json.Unmarshal([]byte(out), &output))
	assert.True(t, output.Found)
	assert.Equal(t, "c1", output.Intent.CaseID)
	assert.True(t, output.Intent.AutoFileOnSend)

	_, err = runCLI(t, ctx, svc, "intent", "clear", "--conversation-id=conv-9")
	require.NoError(t, err)
	out, err = runCLI(t, ctx, svc, "intent", "get", "--conversation-id=conv-9")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &output))
	assert.False(t, output.Found)
}

func TestCLIOverridesAndHistory(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, "")

	out, err := runCLI(t, ctx, svc, append([]string{"do-not-file"}, itemArgs...)...)
	require.NoError(t, err)
	var override ops.OverrideOutput
	require.NoError(t, json.Unmarshal([]byte(out), &override))
	assert.True(t, override.Override)

	out, err = runCLI(t, ctx, svc, append([]string{"allow-filing"}, itemArgs...)...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &override))
	assert.False(t, override.Override)

	_, err = runCLI(t, ctx, svc, append([]string{"file", "--case=c1"}, itemArgs...)...)
	require.NoError(t, err)
	_, err = runCLI(t, ctx, svc, append([]string{"unfile"}, itemArgs...)...)
	require.NoError(t, err)

	out, err = runCLI(t, ctx, svc, "history")
	require.NoError(t, err)
	var hist ops.HistoryOutput
	require.NoError(t, json.Unmarshal([]byte(out), &hist))
	assert.Equal(t, 1, hist.Conversations, "unfiling keeps the learned history")
	assert.Nil(t, hist.Stats)
}

func TestCLIWatch(t *testing.T) {
	svc, fake := setupTestService(t, "")
	fake.AddFiling("conv-1", "Smith v. Jones update", remote.Filing{CaseID: "c1", DocumentID: "d1"})
	itemFile := writeFile(t, "current.json", `{"itemId": "m1", "conversationId": "conv-1", "subject": "Smith v. Jones update"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	out, err := runCLI(t, ctx, svc, "watch", "--item-file="+itemFile, "--interval=20ms")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1, "an unchanged item is resolved once")
	var res resolver.Resolution
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &res))
	assert.Equal(t, resolver.StateFiled, res.State)
	assert.Equal(t, "c1", res.CaseID)
}

func TestRefreshOnSignal(t *testing.T) {
	svc, _ := setupTestService(t, "")
	item := resolver.CurrentItemContext{ItemID: "m1", ConversationID: "conv-1", Subject: "Smith v. Jones update"}
	itemFile := writeFile(t, "current.json", `{"itemId": "m1", "conversationId": "conv-1", "subject": "Smith v. Jones update"}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var states []resolver.State
	snapshot := func() []resolver.State {
		mu.Lock()
		defer mu.Unlock()
		return append([]resolver.State(nil), states...)
	}

	src := resolver.NewFileSource(itemFile, zerolog.Nop())
	loop := resolver.NewLoop(svc.Resolver(), src, 10*time.Millisecond, func(_ resolver.CurrentItemContext, res resolver.Resolution) {
		mu.Lock()
		states = append(states, res.State)
		mu.Unlock()
	}, zerolog.Nop())

	sigs := make(chan os.Signal, 1)
	go refreshOnSignal(ctx, sigs, loop, zerolog.Nop())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx, nil)
	}()

	require.Eventually(t, func() bool { return len(snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, resolver.StateUnfiled, snapshot()[0])

	_, err := svc.File(ctx, ops.FileInput{Item: item, CaseID: "c1"})
	require.NoError(t, err)
	assert.Never(t, func() bool { return len(snapshot()) > 1 }, 100*time.Millisecond, 10*time.Millisecond,
		"an unchanged item is not resolved again on its own")

	sigs <- syscall.SIGHUP
	require.Eventually(t, func() bool { return len(snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, resolver.StateFiled, snapshot()[1])

	cancel()
	<-done
}

// TestCLIErrorHandling tests error handling in CLI commands.
func TestCLIErrorHandling(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, "")

	tests := []struct {
		name string
		args []string
	}{
		{name: "file without case", args: append([]string{"file"}, itemArgs...)},
		{name: "status without item", args: []string{"status"}},
		{name: "confirm unknown deferred", args: []string{"deferred", "confirm", "01NOPE"}},
		{name: "discard without id", args: []string{"deferred", "discard"}},
		{name: "suggest with missing cases file", args: append([]string{"suggest", "--cases=/nonexistent/cases.json"}, itemArgs...)},
		{name: "unreadable item file", args: []string{"status", "--item-file=" + writeFile(t, "bad.json", "{not json")}},
		{name: "intent without case", args: []string{"intent", "set", "--conversation-id=conv-9", "--case= "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runCLI(t, ctx, svc, tt.args...); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestItemFromFlags_FileAndOverrides(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupTestService(t, "")
	itemFile := writeFile(t, "item.json", `{"itemId": "m9", "subject": "From file", "attachments": ["a.pdf"]}`)

	out, err := runCLI(t, ctx, svc, "unfile", "--item-file="+itemFile, "--subject=Overridden")
	require.NoError(t, err)
	var output ops.UnfileOutput
	require.NoError(t, json.Unmarshal([]byte(out), &output))
	assert.Equal(t, "item:m9", output.ItemKey)
}

func TestOpenServices_PersistsAcrossRuns(t *testing.T) {
	for _, tc := range []struct {
		name  string
		setup func(*config.Config)
	}{
		{name: "runtime store", setup: func(*config.Config) {}},
		{name: "local store", setup: func(c *config.Config) { c.DisableRuntimeStore = true }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			baseDir := t.TempDir()
			cfg := config.DefaultConfig()
			tc.setup(cfg)
			item := resolver.CurrentItemContext{ItemID: "m1", ConversationID: "conv-1", Subject: "Budget"}

			rt, err := openServices(ctx, baseDir, cfg, zerolog.Nop())
			require.NoError(t, err)
			rec, err := rt.svc.Status(ctx, item)
			require.NoError(t, err)
			assert.Equal(t, resolver.StateUnknown, rec.State, "offline remote and no local evidence")
			_, err = rt.svc.DoNotFile(ctx, item)
			require.NoError(t, err)
			rt.Close()
			rt.Close()

			rt, err = openServices(ctx, baseDir, cfg, zerolog.Nop())
			require.NoError(t, err)
			defer rt.Close()
			res, err := rt.svc.Status(ctx, item)
			require.NoError(t, err)
			assert.Equal(t, resolver.StateUnfiled, res.State)
			assert.True(t, res.Override)
		})
	}
}

func TestNewAuthority(t *testing.T) {
	cfg := config.DefaultConfig()
	auth, err := newAuthority(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, remote.Offline{}, auth)

	cfg.RemoteURL = "http://cases.example.com/api"
	auth, err = newAuthority(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &remote.Client{}, auth)

	cfg.RemoteURL = "not a url"
	_, err = newAuthority(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, newLogger("debug").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, newLogger("").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, newLogger("loud").GetLevel())
}

// TestIsCLIMode tests the isCLIMode function.
func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{name: "no args", args: []string{"casefile"}, expected: false},
		{name: "status command", args: []string{"casefile", "status"}, expected: true},
		{name: "deferred command", args: []string{"casefile", "deferred"}, expected: true},
		{name: "watch command", args: []string{"casefile", "watch"}, expected: true},
		{name: "help flag", args: []string{"casefile", "--help"}, expected: true},
		{name: "version flag", args: []string{"casefile", "--version"}, expected: true},
		{name: "short help flag", args: []string{"casefile", "-h"}, expected: true},
		{name: "short version flag", args: []string{"casefile", "-v"}, expected: true},
		{name: "unknown arg defaults to MCP", args: []string{"casefile", "--unknown"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isCLIMode(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// TestIsHelpOrVersion tests the isHelpOrVersion function.
func TestIsHelpOrVersion(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{name: "no args", args: []string{"casefile"}, expected: false},
		{name: "help flag", args: []string{"casefile", "--help"}, expected: true},
		{name: "short version flag", args: []string{"casefile", "-v"}, expected: true},
		{name: "help subcommand", args: []string{"casefile", "help"}, expected: true},
		{name: "file command is not help", args: []string{"casefile", "file"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isHelpOrVersion(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// TestReadStdinWithLimit tests the readStdin function respects size limits.
func TestReadStdinWithLimit(t *testing.T) {
	pipeStdin := func(t *testing.T, content string) {
		t.Helper()
		r, w, err := os.Pipe()
		if err != nil {
			t.Fatalf("failed to create pipe: %v", err)
		}
		go func() {
			_, _ = w.WriteString(content)
			w.Close()
		}()
		oldStdin := os.Stdin
		os.Stdin = r
		t.Cleanup(func() { os.Stdin = oldStdin })
	}

	t.Run("within limit", func(t *testing.T) {
		pipeStdin(t, "  [{\"id\": \"c1\"}]\n")
		result, err := readStdin(1000)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if result != `[{"id": "c1"}]` {
			t.Errorf("got %q", result)
		}
	})

	t.Run("exceeds limit", func(t *testing.T) {
		pipeStdin(t, strings.Repeat("x", 100))
		if _, err := readStdin(50); err == nil {
			t.Error("expected error for content exceeding limit, got nil")
		}
	})
}
