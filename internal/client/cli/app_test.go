package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/virtbridge/vmcourier/internal/client/config"
	"github.com/virtbridge/vmcourier/internal/client/journal"
	"github.com/virtbridge/vmcourier/internal/wire"
)

// newTestApp builds an App whose exit handling and output are
// captured instead of reaching the process.
func newTestApp(cfg *config.Config) (*App, *bytes.Buffer) {
	a := NewApp(cfg)
	a.app.ExitErrHandler = func(*cli.Context, error) {}
	buf := &bytes.Buffer{}
	a.app.Writer = buf
	a.app.ErrWriter = io.Discard
	return a, buf
}

func defaultConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	return cfg
}

func TestGlobalFlagsOverrideConfig(t *testing.T) {
	cfg := defaultConfig()
	a, buf := newTestApp(cfg)

	err := a.Run(context.Background(), []string{"courierctl",
		"--endpoint", "tcp://10.0.0.5:9000",
		"--fragment-size", "2048",
		"--timeout", "5s",
		"--retries", "9",
		"--verbose",
		"version"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Endpoint != "tcp://10.0.0.5:9000" {
		t.Errorf("endpoint not applied, got %q", cfg.Endpoint)
	}
	if cfg.FragmentSize != 2048 {
		t.Errorf("fragment size not applied, got %d", cfg.FragmentSize)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("timeout not applied, got %v", cfg.Timeout)
	}
	if cfg.DialRetries != 9 {
		t.Errorf("retries not applied, got %d", cfg.DialRetries)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("verbose should select debug logging, got %q", cfg.LogLevel)
	}
	if !strings.Contains(buf.String(), "Build version:") {
		t.Errorf("version output missing build data:\n%s", buf.String())
	}
}

func TestUnsetFlagsKeepConfigValues(t *testing.T) {
	cfg := defaultConfig()
	cfg.CID = 42
	cfg.FragmentSize = 512
	a, _ := newTestApp(cfg)

	if err := a.Run(context.Background(), []string{"courierctl", "version"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.CID != 42 {
		t.Errorf("cid clobbered, got %d", cfg.CID)
	}
	if cfg.FragmentSize != 512 {
		t.Errorf("fragment size clobbered, got %d", cfg.FragmentSize)
	}
}

func TestTransferUsageErrors(t *testing.T) {
	for _, args := range [][]string{
		{"courierctl", "get", "only-one"},
		{"courierctl", "put"},
		{"courierctl", "exec"},
	} {
		a, _ := newTestApp(defaultConfig())
		err := a.Run(context.Background(), args)

		var coder cli.ExitCoder
		if !errors.As(err, &coder) {
			t.Fatalf("%v: expected an exit coder, got %v", args, err)
		}
		if coder.ExitCode() != exitUsage {
			t.Errorf("%v: expected exit code %d, got %d", args, exitUsage, coder.ExitCode())
		}
	}
}

func TestJournalPathDefaultsToStateDir(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_STATE_HOME", tmp)

	cfg := defaultConfig()
	a, _ := newTestApp(cfg)

	path, err := a.journalPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(tmp, "courierctl", "journal.db")
	if path != want {
		t.Errorf("expected %q, got %q", want, path)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("state directory not created: %v", err)
	}
}

func TestJournalPathPrefersConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.JournalPath = "/tmp/elsewhere.db"
	a, _ := newTestApp(cfg)

	path, err := a.journalPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/tmp/elsewhere.db" {
		t.Errorf("configured path ignored, got %q", path)
	}
}

func TestRecordSwallowsJournalFailures(t *testing.T) {
	cfg := defaultConfig()
	cfg.JournalPath = filepath.Join(t.TempDir(), "no", "such", "dir", "journal.db")
	a, _ := newTestApp(cfg)

	// Must not panic or fail the caller in any way.
	a.record(&journal.Entry{
		ID:        uuid.NewString(),
		Verb:      "get",
		Arguments: "a -> b",
		Status:    wire.StatusOK.String(),
		StartedAt: time.Now(),
	})
}

func TestHistoryListsRecordedOperations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	db, err := journal.Open(ctx, path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	j := journal.New(db)
	base := time.Now().Add(-time.Minute)
	for i, e := range []*journal.Entry{
		{Verb: "get", Arguments: "/etc/hosts -> hosts", Status: wire.StatusOK.String(), Bytes: 321},
		{Verb: "exec", Arguments: "rm -rf /tmp/scratch", Status: wire.StatusServerExecFork.String(), ExitCode: 0},
	} {
		e.ID = uuid.NewString()
		e.StartedAt = base.Add(time.Duration(i) * time.Second)
		e.FinishedAt = e.StartedAt.Add(time.Second)
		if err := j.Record(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close journal: %v", err)
	}

	cfg := defaultConfig()
	a, buf := newTestApp(cfg)
	err = a.Run(ctx, []string{"courierctl", "--journal", path, "history", "-n", "10"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"STARTED", "/etc/hosts -> hosts", "rm -rf /tmp/scratch", "SERVER_EXEC_FORK_FAILURE"} {
		if !strings.Contains(out, want) {
			t.Errorf("history output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	err = a.Run(ctx, []string{"courierctl", "--journal", path, "history", "--failed"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out = buf.String()
	if strings.Contains(out, "/etc/hosts -> hosts") {
		t.Errorf("--failed should hide OK operations:\n%s", out)
	}
	if !strings.Contains(out, "rm -rf /tmp/scratch") {
		t.Errorf("--failed should keep failed operations:\n%s", out)
	}
}
