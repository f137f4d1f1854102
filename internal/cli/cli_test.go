package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/indigocalifornia/mvgen/internal/config"
	"github.com/indigocalifornia/mvgen/internal/types"
)

func TestConfigFromFlags_FileAndFlags(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "mvgen.yaml")
	body := "audio: song.mp3\nsrc: [" + dir + "]\nmultiplier: 0.5\naudio_mode: mix\nmax_attempts: 7\nextract_timeout: 30s\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cmd := newRootCmd()
	if err := cmd.Flags().Parse([]string{"--config", cfgPath, "-m", "4", "--seed", "9"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	values, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := config.Apply(cmd.Flags(), values); err != nil {
		t.Fatalf("apply: %v", err)
	}
	cfg, err := configFromFlags(cmd)
	if err != nil {
		t.Fatalf("config from flags: %v", err)
	}

	if cfg.Multiplier != 4 {
		t.Fatalf("explicit flag must win, multiplier = %v", cfg.Multiplier)
	}
	if cfg.Audio != "song.mp3" || cfg.AudioMode != "mix" || cfg.MaxAttempts != 7 || cfg.Seed != 9 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.ExtractTimeout != 30*time.Second {
		t.Fatalf("extract timeout = %v", cfg.ExtractTimeout)
	}
	if len(cfg.Sources) != 1 || !filepath.IsAbs(cfg.Sources[0]) {
		t.Fatalf("sources = %v", cfg.Sources)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestRootCmd_Defaults(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.Flags().Parse(nil); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg, err := configFromFlags(cmd)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Beats != "auto" || cfg.Multiplier != 1 || cfg.AudioMode != "audio" || cfg.MaxAttempts != 5 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.FFmpegPath == "" || cfg.FFprobePath == "" {
		t.Fatal("tool paths must default")
	}
	if cfg.MinLength != 0.04 {
		t.Fatalf("min length = %v, want 0.04", cfg.MinLength)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	cmd := newRootCmd()
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--src", t.TempDir()})
	err := cmd.Execute()
	if err == nil || !strings.HasPrefix(err.Error(), "config: ") {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestGetenvDefault(t *testing.T) {
	t.Setenv("MVGEN_TEST_VALUE", "x")
	if got := getenvDefault("MVGEN_TEST_VALUE", "d"); got != "x" {
		t.Fatalf("got %q", got)
	}
	if got := getenvDefault("MVGEN_TEST_UNSET", "d"); got != "d" {
		t.Fatalf("got %q", got)
	}
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	pb := newProgressBar(&buf)
	pb.Notify(types.Event{Kind: types.EventAudio})
	pb.Notify(types.Event{Kind: types.EventSegment, Progress: 0.5})
	pb.Notify(types.Event{Kind: types.EventJoin})
	pb.Notify(types.Event{Kind: types.EventFinalize})
	pb.Close()
	if got := *pb.stage.Load(); got != "finalizing" {
		t.Fatalf("stage = %q", got)
	}
	if pb.bar.Current() != progressScale-1 && !pb.bar.Completed() {
		t.Fatalf("bar not advanced: %d", pb.bar.Current())
	}
}
