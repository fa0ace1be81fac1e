package cmd

import (
	"context"
	"errors"
	"flag"
	"testing"
)

type testConfig struct {
	BaseURL string `env:"CMD_TEST_BASE_URL" envDefault:"http://localhost:8000"`
	Locale  string `env:"CMD_TEST_LOCALE" envDefault:"en-US"`
}

func TestParseConfigReadsEnvAndFlags(t *testing.T) {
	t.Setenv("CMD_TEST_BASE_URL", "http://env:9000")
	t.Setenv("CMD_TEST_LOCALE", "ko-KR")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfgRef := testConfig{}
	if err := ParseConfig(&cfgRef); err != nil {
		t.Fatalf("load config defaults: %v", err)
	}
	fs.StringVar(&cfgRef.BaseURL, "base-url", cfgRef.BaseURL, "base url")
	fs.StringVar(&cfgRef.Locale, "locale", cfgRef.Locale, "locale")

	if err := ParseArgs(fs, []string{"-base-url", "http://flag:9001"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if cfgRef.BaseURL != "http://flag:9001" {
		t.Fatalf("expected flag value for base url, got %q", cfgRef.BaseURL)
	}
	if cfgRef.Locale != "ko-KR" {
		t.Fatalf("expected env locale, got %q", cfgRef.Locale)
	}
}

func TestParseConfigFromArgsReadsEnvAndFlags(t *testing.T) {
	t.Setenv("CMD_TEST_LOCALE", "ko-KR")

	cfgRef := testConfig{}
	fs := flag.NewFlagSet("configargs", flag.ContinueOnError)
	fs.StringVar(&cfgRef.BaseURL, "base-url", "", "base url")
	if err := ParseConfigFromArgs(&cfgRef, fs, []string{"-base-url", "http://flag:9002"}); err != nil {
		t.Fatalf("parse config and args: %v", err)
	}
	if cfgRef.BaseURL != "http://flag:9002" {
		t.Fatalf("expected parsed flag base url, got %q", cfgRef.BaseURL)
	}
	if cfgRef.Locale != "ko-KR" {
		t.Fatalf("expected env locale, got %q", cfgRef.Locale)
	}
}

func TestParseArgsRejectsNilParser(t *testing.T) {
	t.Parallel()

	if err := ParseArgs(nil, []string{}); err == nil {
		t.Fatal("expected parse args to reject nil parser")
	}
}

func TestParseConfigRejectsNilTarget(t *testing.T) {
	t.Parallel()

	if err := ParseConfig[testConfig](nil); err == nil {
		t.Fatal("expected parse config to reject nil target")
	}
}

func TestRunWithTelemetryValidatesInputs(t *testing.T) {
	t.Parallel()

	if err := RunWithTelemetry(context.Background(), " ", RunOptions{}, func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for blank service")
	}
	if err := RunWithTelemetry(context.Background(), ServiceLinkpage, RunOptions{}, nil); err == nil {
		t.Fatal("expected error for nil run")
	}
}

func TestRunWithTelemetryReturnsRunError(t *testing.T) {
	t.Parallel()

	want := errors.New("boom")
	got := RunWithTelemetry(context.Background(), ServiceLinkpage, RunOptions{}, func(context.Context) error {
		return want
	})
	if !errors.Is(got, want) {
		t.Fatalf("RunWithTelemetry() error = %v, want %v", got, want)
	}
}
