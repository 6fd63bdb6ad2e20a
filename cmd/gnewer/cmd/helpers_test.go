package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/franksops/gonewer/config"
	"github.com/franksops/gonewer/provider"
	"github.com/franksops/gonewer/store"
)

func TestFilterOptionsApply(t *testing.T) {
	cfg := &config.Config{
		Source:   "from-file",
		Dest:     "dest-file",
		Ext:      ".css",
		Workers:  2,
		StateDir: ".gonewer",
	}
	o := &filterOptions{ext: ".js", workers: 8, prefetch: 4, include: []string{"**/*.ts"}}
	set := map[string]bool{"ext": true, "workers": true}

	o.apply(cfg, []string{"src"}, func(name string) bool { return set[name] })

	if cfg.Source != "src" {
		t.Errorf("Source = %q, want src", cfg.Source)
	}
	if cfg.Dest != "dest-file" {
		t.Errorf("Dest = %q, want dest-file kept from file", cfg.Dest)
	}
	if cfg.Ext != ".js" || cfg.Workers != 8 {
		t.Errorf("changed flags not applied: ext=%q workers=%d", cfg.Ext, cfg.Workers)
	}
	if cfg.Prefetch != 0 || cfg.Include != nil {
		t.Errorf("unchanged flags must not override: prefetch=%d include=%v", cfg.Prefetch, cfg.Include)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := (&filterOptions{}).loadConfig(dir)
	if err != nil {
		t.Fatalf("loadConfig without file: %v", err)
	}
	if cfg.StateDir != config.DefaultStateDir {
		t.Errorf("StateDir = %q, want default", cfg.StateDir)
	}

	data := "source: src\ndest: out\next: .js\n"
	if err := os.WriteFile(filepath.Join(dir, config.FileName), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = (&filterOptions{}).loadConfig(dir)
	if err != nil {
		t.Fatalf("loadConfig with discovered file: %v", err)
	}
	if cfg.Source != "src" || cfg.Ext != ".js" {
		t.Errorf("discovered config not loaded: %+v", cfg)
	}

	_, err = (&filterOptions{configPath: filepath.Join(dir, "missing.yaml")}).loadConfig(dir)
	if err == nil {
		t.Error("expected error for explicit missing config")
	}
}

func TestCreateProvider(t *testing.T) {
	ctx := context.Background()

	p, root, err := createProvider(ctx, "/tmp/out", true)
	if err != nil {
		t.Fatalf("createProvider(local): %v", err)
	}
	if _, ok := p.(*provider.LocalProvider); !ok {
		t.Errorf("expected *provider.LocalProvider, got %T", p)
	}
	if root != "/tmp/out" {
		t.Errorf("root = %q, want /tmp/out", root)
	}

	if _, _, err := createProvider(ctx, "s3:///prefix", false); err == nil {
		t.Error("expected error for S3 URL without bucket")
	}
}

func TestOpenStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	st, err := openStore(dir)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer st.Close()

	if _, err := os.Stat(filepath.Join(dir, stateFile)); err != nil {
		t.Errorf("state file not created: %v", err)
	}
}

func TestPrintRuns(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
	runs := []*store.RunRecord{{
		ID:         "0190b2c4-run",
		State:      store.RunSucceeded,
		Mode:       "directory",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Seen:       3,
		Emitted:    2,
		Suppressed: 1,
	}}

	var buf bytes.Buffer
	if err := printRuns(&buf, runs); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"RUN", "0190b2c4-run", "Succeeded", "directory", "1.5s", "2024-05-01 12:00:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRootCommandPrintsStaleSources(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dest := filepath.Join(root, "out")
	old := time.Now().Add(-time.Hour).Truncate(time.Second)

	for rel, mtime := range map[string]time.Time{
		filepath.Join(src, "a.txt"):  old,
		filepath.Join(src, "b.txt"):  old,
		filepath.Join(dest, "b.txt"): old.Add(time.Minute),
	} {
		if err := os.MkdirAll(filepath.Dir(rel), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(rel, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(rel, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{src, dest, "--state-dir", filepath.Join(root, "state")})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got, want := strings.TrimSpace(out.String()), filepath.Join(src, "a.txt"); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestRootCommandRejectsUnknownLogFormat(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"version", "--log-format", "yaml"})
	t.Cleanup(func() {
		globalFlags.logFormat = "text"
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), `unknown log format "yaml"`) {
		t.Errorf("Execute error = %v, want unknown log format", err)
	}
}
