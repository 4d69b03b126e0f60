package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testPrescriptions = `{
  "patientId": "p-1",
  "prescriptions": [
    {
      "id": "rx-1",
      "medicationName": "Metformin",
      "dose": 500,
      "unit": "mg",
      "route": "mouth",
      "startDate": "2026-10-01",
      "frequency": "daily",
      "occurrences": [{"times": ["08:00", "20:00"]}],
      "deferInterval": 15
    }
  ]
}`

type testEnv struct {
	dir  string
	args []string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	rxPath := filepath.Join(dir, "prescriptions.json")
	if err := os.WriteFile(rxPath, []byte(testPrescriptions), 0o644); err != nil {
		t.Fatalf("write prescriptions: %v", err)
	}
	t.Setenv("MEDREMIND_LOG__PATH", filepath.Join(dir, "medremind.log"))
	return testEnv{
		dir: dir,
		args: []string{
			"--config", filepath.Join(dir, "absent.yaml"),
			"--db", filepath.Join(dir, "medremind.db"),
			"--prescriptions", rxPath,
		},
	}
}

func (e testEnv) run(t *testing.T, args ...string) string {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(append([]string{}, e.args...), args...))
	if err := cmd.ExecuteContext(t.Context()); err != nil {
		t.Fatalf("medremind %v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestGenerateIsDeduplicatedAcrossRuns(t *testing.T) {
	env := newTestEnv(t)

	out := env.run(t, "generate", "--now", "2026-10-19T07:00:00Z")
	if !strings.Contains(out, "2 reminders queued") {
		t.Fatalf("unexpected first generate output: %q", out)
	}
	out = env.run(t, "generate", "--now", "2026-10-19T07:30:00Z")
	if !strings.Contains(out, "2 reminders queued, 2 fingerprints") {
		t.Fatalf("second pass must not duplicate reminders: %q", out)
	}

	out = env.run(t, "queue")
	if !strings.Contains(out, "Metformin") || strings.Count(out, "rx-1") != 2 {
		t.Fatalf("unexpected queue output:\n%s", out)
	}
}

func TestStaleReminderIsReportedMissed(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, "generate", "--now", "2026-10-19T07:00:00Z")

	out := env.run(t, "generate", "--now", "2026-10-19T12:00:00Z")
	if !strings.Contains(out, "1 reminders queued") {
		t.Fatalf("stale 08:00 reminder should be resolved: %q", out)
	}

	out = env.run(t, "reports", "--status", "missed")
	if !strings.Contains(out, "missed") || !strings.Contains(out, "rx-1") {
		t.Fatalf("expected a missed report:\n%s", out)
	}
	if out := env.run(t, "reports", "--status", "completed"); !strings.Contains(out, "no status reports") {
		t.Fatalf("expected no completed reports: %q", out)
	}
}

func TestPurgeDropsExpiredFingerprints(t *testing.T) {
	env := newTestEnv(t)
	env.run(t, "generate", "--now", "2026-10-19T07:00:00Z")

	if out := env.run(t, "purge", "--now", "2026-10-19T08:00:00Z"); !strings.Contains(out, "purged 0") {
		t.Fatalf("fresh fingerprints must survive: %q", out)
	}
	if out := env.run(t, "purge", "--now", "2026-10-21T08:00:00Z"); !strings.Contains(out, "purged 2") {
		t.Fatalf("expired fingerprints should be purged: %q", out)
	}
}

func TestInvalidNowFlag(t *testing.T) {
	env := newTestEnv(t)
	cmd := newRootCommand()
	cmd.SetArgs(append(env.args, "queue", "--now", "tomorrow"))
	cmd.SetOut(&bytes.Buffer{})
	if err := cmd.ExecuteContext(t.Context()); err == nil {
		t.Fatal("expected an error for a malformed --now")
	}
}
