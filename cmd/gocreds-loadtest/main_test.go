package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(samples, 50); got != 5 {
		t.Fatalf("p50 = %v", got)
	}
	if got := percentile(samples, 100); got != 10 {
		t.Fatalf("p100 = %v", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty = %v", got)
	}
}

func TestParseOptionsRejectsNonPositive(t *testing.T) {
	if _, err := parseOptions([]string{"--users", "0"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunSmall(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	var out bytes.Buffer
	err := run(context.Background(), []string{"--users", "4", "--concurrency", "4", "--ops", "40", "--metrics"}, &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	text := out.String()
	for _, want := range []string{"verify: ops=40 failures=0", "refresh: ops=40 failures=0", "gocreds_refresh_success_total 40"} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in output:\n%s", want, text)
		}
	}
}
