package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/rs/zerolog"
)

type fakeMigrator struct {
	calls   []string
	upErr   error
	version uint
	dirty   bool
	verErr  error
	steps   int
	forced  int
}

func (f *fakeMigrator) Up() error {
	f.calls = append(f.calls, "up")
	return f.upErr
}

func (f *fakeMigrator) Down() error {
	f.calls = append(f.calls, "down")
	return nil
}

func (f *fakeMigrator) Steps(n int) error {
	f.calls = append(f.calls, "steps")
	f.steps = n
	return nil
}

func (f *fakeMigrator) Force(v int) error {
	f.calls = append(f.calls, "force")
	f.forced = v
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) {
	f.calls = append(f.calls, "version")
	return f.version, f.dirty, f.verErr
}

func TestRun_UpReportsJournalVersion(t *testing.T) {
	var buf bytes.Buffer
	m := &fakeMigrator{upErr: migrate.ErrNoChange, version: 1}

	if err := run(m, []string{"up"}, zerolog.New(&buf)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := strings.Join(m.calls, ","); got != "up,version" {
		t.Errorf("calls = %s, want up,version", got)
	}
	out := buf.String()
	if !strings.Contains(out, `"version":1`) || !strings.Contains(out, "Attempt journal schema version") {
		t.Errorf("log = %s", out)
	}
}

func TestRun_EmptySchema(t *testing.T) {
	var buf bytes.Buffer
	m := &fakeMigrator{verErr: migrate.ErrNilVersion}

	if err := run(m, []string{"down"}, zerolog.New(&buf)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(buf.String(), "schema is empty") {
		t.Errorf("log = %s", buf.String())
	}
}

func TestRun_NumericArguments(t *testing.T) {
	m := &fakeMigrator{version: 1}
	if err := run(m, []string{"steps", "-1"}, zerolog.Nop()); err != nil {
		t.Fatalf("steps: %v", err)
	}
	if m.steps != -1 {
		t.Errorf("steps = %d, want -1", m.steps)
	}
	if err := run(m, []string{"force", "1"}, zerolog.Nop()); err != nil {
		t.Fatalf("force: %v", err)
	}
	if m.forced != 1 {
		t.Errorf("forced = %d, want 1", m.forced)
	}

	for _, args := range [][]string{{"force"}, {"steps", "x"}, {"sideways"}} {
		if err := run(&fakeMigrator{}, args, zerolog.Nop()); !errors.Is(err, errUsage) {
			t.Errorf("run(%v) = %v, want usage error", args, err)
		}
	}
}

func TestRun_UpFailure(t *testing.T) {
	m := &fakeMigrator{upErr: errors.New("relation exists")}
	if err := run(m, []string{"up"}, zerolog.Nop()); err == nil || !strings.Contains(err.Error(), "relation exists") {
		t.Fatalf("run = %v, want up failure", err)
	}
	if len(m.calls) != 1 {
		t.Errorf("calls = %v, version must not be read after a failure", m.calls)
	}
}
