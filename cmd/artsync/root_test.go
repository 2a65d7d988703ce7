package main

import (
	"errors"
	"testing"

	apperrors "artsync/pkg/errors"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.NewConfig(errors.New("bad yaml")), apperrors.ExitConfig},
		{apperrors.NewAuth("not logged in"), apperrors.ExitAuth},
		{errors.New("boom"), apperrors.ExitRunErrors},
	}
	for _, tt := range tests {
		var exit *exitError
		if !errors.As(exitCode(tt.err), &exit) {
			t.Fatalf("exitCode(%v) is not an exitError", tt.err)
		}
		if exit.code != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, exit.code, tt.want)
		}
	}
	if exitCode(nil) != nil {
		t.Error("exitCode(nil) should be nil")
	}
}

func TestMask(t *testing.T) {
	if got := mask("1234567890abcdef"); got != "1234...cdef" {
		t.Errorf("mask = %q", got)
	}
	if got := mask("short"); got != "***" {
		t.Errorf("mask short = %q", got)
	}
	if got := mask(""); got != "" {
		t.Errorf("mask empty = %q", got)
	}
}

func TestFlagOverridesOnlyChanged(t *testing.T) {
	if err := rootCmd.ParseFlags([]string{"--retry", "5", "--output", "/tmp/art"}); err != nil {
		t.Fatal(err)
	}
	flags := flagOverrides(rootCmd)
	if flags["retry"] != 5 {
		t.Errorf("retry = %v", flags["retry"])
	}
	if flags["output"] != "/tmp/art" {
		t.Errorf("output = %v", flags["output"])
	}
	if _, ok := flags["delay"]; ok {
		t.Error("unset delay must not override config")
	}
}
