package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
	"lesiw.io/recur"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNext(t *testing.T) {
	got, err := execute(t, "next", "-s", "0 0 12 * * ?",
		"--from", "2024-01-01T00:00:00Z", "-n", "2")

	if err != nil {
		t.Fatalf("recur next = _, %q, want <nil>", err)
	}
	want := "2024-01-01T12:00:00Z\n2024-01-02T12:00:00Z\n"
	if got != want {
		t.Errorf("recur next -want +got\n%s", cmp.Diff(want, got))
	}
}

func TestPrevLocation(t *testing.T) {
	got, err := execute(t, "prev", "30 9 * * MON",
		"--location", "+02:00", "--from", "2024-06-12T00:00:00", "-n", "1")

	if err != nil {
		t.Fatalf("recur prev = _, %q, want <nil>", err)
	}
	if want := "2024-06-10T09:30:00+02:00\n"; got != want {
		t.Errorf("recur prev -want +got\n%s", cmp.Diff(want, got))
	}
}

func TestNextNone(t *testing.T) {
	_, err := execute(t, "next", "0 0 0 1 1 ? 2020", "-s",
		"--from", "2024-01-01T00:00:00Z")

	if err == nil {
		t.Errorf("recur next = _, <nil>, want error")
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		time string
		want string
	}{
		{"2024-01-05T12:00:00Z", "true\n"},  // Friday
		{"2024-01-06T12:00:00Z", "false\n"}, // Saturday
		{"2024-01-05T12:00:01Z", "false\n"},
	}
	for _, tt := range tests {
		got, err := execute(t, "valid", "0 12 * * 1-5", tt.time)
		if err != nil {
			t.Errorf("recur valid %q = _, %q, want <nil>", tt.time, err)
			continue
		}
		if got != tt.want {
			t.Errorf("recur valid %q = %q, want %q", tt.time, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	out, err := execute(t, "parse", "0 0 12 * * 6#1", "-s")

	if err != nil {
		t.Fatalf("recur parse = _, %q, want <nil>", err)
	}
	var got recur.Schedule
	if err := yaml.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("yaml.Unmarshal(%q) = %q, want <nil>", out, err)
	}
	if got, want := got.String(), "{d:7 dc:1 h:12 m:0 s:0}"; got != want {
		t.Errorf("parsed schedule = %q, want %q", got, want)
	}
}

func TestParseError(t *testing.T) {
	if _, err := execute(t, "parse", "bad"); err == nil {
		t.Errorf("recur parse bad = _, <nil>, want error")
	}
}

func TestConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recur.yaml")
	config := "location: \"-05:00\"\n"
	if err := os.WriteFile(path, []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := execute(t, "next", "0 0 * * *", "-c", path,
		"--from", "2024-03-01T12:00:00", "-n", "1")

	if err != nil {
		t.Fatalf("recur next = _, %q, want <nil>", err)
	}
	if want := "2024-03-02T00:00:00-05:00\n"; got != want {
		t.Errorf("recur next -want +got\n%s", cmp.Diff(want, got))
	}
}

func TestRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(
		context.Background(), 2500*time.Millisecond)
	defer cancel()
	var out bytes.Buffer
	jobs := []recur.Job{{Name: "tick", Cron: "* * * * * ?", Seconds: true}}

	err := run(ctx, &out, recur.Config{LogLevel: "error"}, jobs)

	if err != nil {
		t.Fatalf("run() = %q, want <nil>", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) < 1 || !strings.HasSuffix(lines[0], "\ttick") {
		t.Errorf("run() printed %q, want lines ending in tick", out.String())
	}
}

func TestRunNoOccurrence(t *testing.T) {
	jobs := []recur.Job{{
		Name: "past", Cron: "0 0 0 1 1 ? 2020", Seconds: true,
	}}

	err := run(context.Background(), new(bytes.Buffer), recur.Config{}, jobs)

	if err == nil {
		t.Errorf("run() = <nil>, want error")
	}
}
