package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/plexmon/plexmon/internal/api"
)

func TestMask(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "(not set)"},
		{"abc", "***"},
		{"12345678", "********"},
		{"abcd1234efgh", "abcd****efgh"},
	}
	for _, tt := range tests {
		if got := mask(tt.in); got != tt.want {
			t.Errorf("mask(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "plexmon "+api.Version {
		t.Errorf("unexpected output %q", got)
	}
}

func TestCheckReportsMissingConfig(t *testing.T) {
	t.Setenv("SERVER_IP", "")
	t.Setenv("PLEX_IP", "")
	t.Setenv("IP_SERVER", "")
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("TOKEN_TELEGRAM", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"check"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for missing configuration")
	}
	if !strings.Contains(out.String(), "TELEGRAM_TOKEN is required") {
		t.Errorf("unexpected output %q", out.String())
	}
}
