package cli

import (
	"strings"
	"testing"
	"time"
)

func TestResolveCutoff(t *testing.T) {
	now := time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC)

	got, err := resolveCutoff("", 24*time.Hour, now)
	if err != nil || !got.Equal(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("older-than cutoff = %s, %v", got, err)
	}

	got, err = resolveCutoff("1999-12-31T12:00:00Z", 0, now)
	if err != nil || !got.Equal(time.Date(1999, 12, 31, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("before cutoff = %s, %v", got, err)
	}

	if _, err := resolveCutoff("", 0, now); err == nil {
		t.Fatal("missing cutoff should fail")
	}
	if _, err := resolveCutoff("1999-12-31T12:00:00Z", time.Hour, now); err == nil {
		t.Fatal("both flags should fail")
	}
	if _, err := resolveCutoff("yesterday", 0, now); err == nil || !strings.Contains(err.Error(), "--before") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"replay", "watch", "show", "prune", "export", "simulate", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("command %s not registered: %v", name, err)
		}
	}
}
