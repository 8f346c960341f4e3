package cli

import (
	"errors"
	"slices"
	"testing"

	"github.com/vietddude/runpurge/internal/core/config"
)

func TestApplyFlags(t *testing.T) {
	cfg, err := config.Parse([]byte("owner: from-file\nretention:\n  runs_to_keep: 9\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	err = rootCmd.ParseFlags([]string{
		"--owner", "octo",
		"--keep", "3",
		"--older-than", "0",
		"--dry-run", "yes",
		"--workflows", "ci, release ,",
	})
	if err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}

	if err := applyFlags(rootCmd, cfg); err != nil {
		t.Fatalf("applyFlags failed: %v", err)
	}
	if cfg.Owner != "octo" {
		t.Errorf("Expected owner override, got %s", cfg.Owner)
	}
	if cfg.Retention.RunsToKeep != 3 {
		t.Errorf("Expected keep 3, got %d", cfg.Retention.RunsToKeep)
	}
	if cfg.OlderThanDays() != 0 {
		t.Errorf("Expected older-than 0, got %d", cfg.OlderThanDays())
	}
	if !cfg.Retention.DryRun {
		t.Error("Expected dry run enabled")
	}
	if !slices.Equal(cfg.Retention.WorkflowNames, []string{"ci", "release"}) {
		t.Errorf("Unexpected workflows: %v", cfg.Retention.WorkflowNames)
	}
}

func TestApplyFlagsInvalidDryRun(t *testing.T) {
	cfg, err := config.Parse(nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if err := rootCmd.ParseFlags([]string{"--dry-run", "maybe"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}

	err = applyFlags(rootCmd, cfg)
	if !errors.Is(err, config.ErrInvalidParameter) {
		t.Errorf("Expected ErrInvalidParameter, got %v", err)
	}
}
