package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const qstatJSON = `{
  "timestamp": 1700000000,
  "pbs_version": "19.1.3",
  "Jobs": {
    "101.pbs": {"Job_Name": "surveyor", "job_state": "R"},
    "102.pbs": {"Job_Name": "surveyor", "job_state": "Q"},
    "103.pbs": {"Job_Name": "surveyor", "job_state": "Q"},
    "104.pbs": {"Job_Name": "other", "job_state": "Q"},
    "105.pbs": {"Job_Name": "surveyor", "job_state": "E"}
  }
}`

type call struct {
	prog string
	args []string
}

// stub возвращает stubCommand, который записывает вызовы и отвечает
// заранее заданным выводом.
func stub(calls *[]call, outputs map[string]*exec.Cmd) func(context.Context, string, ...string) *exec.Cmd {
	return func(ctx context.Context, prog string, args ...string) *exec.Cmd {
		*calls = append(*calls, call{prog, args})
		if cmd, ok := outputs[prog]; ok {
			return exec.Command(cmd.Path, cmd.Args[1:]...)
		}
		return exec.Command("bash", "-c", fmt.Sprintf("echo >&2 'stub: command not found: %s'; false", prog))
	}
}

func printf(s string) *exec.Cmd {
	return exec.Command("printf", "%s", s)
}

func newTestClient(t *testing.T, logDir string) *Client {
	t.Helper()
	c, err := New(Config{
		JobPrefix:    "surveyor",
		Resources:    "nodes=1:ppn=1 walltime=24:00:00",
		Script:       "search.sh",
		LogDir:       logDir,
		ExtraArgs:    "-q 'long queue'",
		DeleteSettle: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNew_BadQuoting(t *testing.T) {
	if _, err := New(Config{Resources: `"unterminated`}); err == nil {
		t.Error("expected error for unterminated quote")
	}
}

func TestSubmit(t *testing.T) {
	var calls []call
	c := newTestClient(t, "/logs")
	c.stubCommand = stub(&calls, map[string]*exec.Cmd{"qsub": printf("106.pbs\n")})

	id, err := c.Submit(context.Background(), []string{"/data/a.fits", "/data/b.fits"}, "/results/a")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id != "106.pbs" {
		t.Errorf("expected 106.pbs, got %q", id)
	}

	want := []string{
		"-V", "-v", `DATAFILES="/data/a.fits,/data/b.fits",OUTDIR="/results/a"`,
		"-l", "nodes=1:ppn=1", "-l", "walltime=24:00:00",
		"-N", "surveyor", "-e", "/logs", "-o", "/logs",
		"-q", "long queue",
		"search.sh",
	}
	if len(calls) != 1 || calls[0].prog != "qsub" || !reflect.DeepEqual(calls[0].args, want) {
		t.Errorf("unexpected qsub call: %+v", calls)
	}
}

func TestSubmit_EmptyOutput(t *testing.T) {
	var calls []call
	c := newTestClient(t, "/logs")
	c.stubCommand = stub(&calls, map[string]*exec.Cmd{"qsub": printf("  \n")})

	if _, err := c.Submit(context.Background(), []string{"a.fits"}, "out"); !errors.Is(err, ErrNoJobID) {
		t.Errorf("expected ErrNoJobID, got %v", err)
	}
}

func TestSubmit_FailureCarriesStderr(t *testing.T) {
	var calls []call
	c := newTestClient(t, "/logs")
	c.stubCommand = stub(&calls, map[string]*exec.Cmd{
		"qsub": exec.Command("bash", "-c", "echo >&2 'qsub: Unknown queue'; exit 1"),
	})

	_, err := c.Submit(context.Background(), []string{"a.fits"}, "out")
	if err == nil || !strings.Contains(err.Error(), "Unknown queue") {
		t.Errorf("expected stderr in error, got %v", err)
	}
}

func TestJobs_FiltersByPrefix(t *testing.T) {
	var calls []call
	c := newTestClient(t, "/logs")
	c.stubCommand = stub(&calls, map[string]*exec.Cmd{"qstat": printf(qstatJSON)})

	jobs, err := c.Jobs(context.Background())
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}

	states := make(map[string]string)
	for _, j := range jobs {
		states[j.ID] = j.State
	}
	want := map[string]string{"101.pbs": StateRunning, "102.pbs": StateQueued, "103.pbs": StateQueued, "105.pbs": StateExiting}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("jobs = %v, want %v", states, want)
	}
	if _, ok := states["104.pbs"]; ok {
		t.Error("jobs of other prefixes must be ignored")
	}

	if !reflect.DeepEqual(calls[0].args, []string{"-f", "-F", "json"}) {
		t.Errorf("unexpected qstat args %v", calls[0].args)
	}
}

func TestJobs_EmptyQueue(t *testing.T) {
	var calls []call
	c := newTestClient(t, "/logs")
	c.stubCommand = stub(&calls, map[string]*exec.Cmd{"qstat": printf("")})

	jobs, err := c.Jobs(context.Background())
	if err != nil || len(jobs) != 0 {
		t.Errorf("expected empty queue, got %v %v", jobs, err)
	}
}

func TestDelete(t *testing.T) {
	var calls []call
	c := newTestClient(t, "/logs")
	c.stubCommand = stub(&calls, map[string]*exec.Cmd{
		"qdel":  printf(""),
		"qstat": printf(qstatJSON),
	})

	// 105 — в состоянии E, считается удалённой
	if err := c.Delete(context.Background(), "105.pbs"); err != nil {
		t.Errorf("exiting job should count as deleted: %v", err)
	}
	// 107 — уже нет в очереди
	if err := c.Delete(context.Background(), "107.pbs"); err != nil {
		t.Errorf("missing job should count as deleted: %v", err)
	}
	// 101 — всё ещё выполняется
	if err := c.Delete(context.Background(), "101.pbs"); !errors.Is(err, ErrNotDeleted) {
		t.Errorf("expected ErrNotDeleted, got %v", err)
	}
}

func TestLogPaths(t *testing.T) {
	dir := t.TempDir()
	c := newTestClient(t, dir)

	if got := c.StderrPath("1234.pbs.example.org"); got != filepath.Join(dir, "surveyor.e1234") {
		t.Errorf("unexpected stderr path %s", got)
	}
	if got := c.StdoutPath("1234"); got != filepath.Join(dir, "surveyor.o1234") {
		t.Errorf("unexpected stdout path %s", got)
	}

	if _, err := c.HadErrors("1234.pbs"); !errors.Is(err, ErrNoStderrLog) {
		t.Errorf("expected ErrNoStderrLog, got %v", err)
	}

	if err := os.WriteFile(c.StderrPath("1234.pbs"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if had, err := c.HadErrors("1234.pbs"); err != nil || had {
		t.Errorf("empty stderr: had=%v err=%v", had, err)
	}

	if err := os.WriteFile(c.StderrPath("1234.pbs"), []byte("segfault\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if had, _ := c.HadErrors("1234.pbs"); !had {
		t.Error("expected errors after stderr write")
	}
	if s, err := c.ReadStderr("1234.pbs"); err != nil || s != "segfault\n" {
		t.Errorf("read stderr: %q %v", s, err)
	}

	if err := os.WriteFile(c.StdoutPath("1234.pbs"), []byte("candidates: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if s, err := c.ReadStdout("1234.pbs"); err != nil || s != "candidates: 3\n" {
		t.Errorf("read stdout: %q %v", s, err)
	}
}
