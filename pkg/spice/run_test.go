package spice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenTraceLab/spice2ibis/pkg/ibis"
)

func testJob(t *testing.T) Job {
	t.Helper()
	dir := t.TempDir()
	job := JobFor(filepath.Join(dir, "put_out_typ"))
	if err := os.WriteFile(job.DeckPath, []byte("* deck\n.END\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return job
}

func TestRunnerCopiesResult(t *testing.T) {
	job := testJob(t)
	r := &Runner{Dialect: hspiceDialect{}, Command: "cp {in} {out}"}
	if err := r.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !hasContent(job.ResultPath) {
		t.Error("result file missing after run")
	}
}

func TestRunnerIterateSkipsInvocation(t *testing.T) {
	job := testJob(t)
	if err := os.WriteFile(job.ResultPath, []byte("cached result\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// The command would clobber the result if it ran.
	r := &Runner{Dialect: hspiceDialect{}, Command: "echo fresh > {out}", Iterate: true}
	if err := r.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, _ := os.ReadFile(job.ResultPath)
	if string(data) != "cached result\n" {
		t.Error("iterate did not reuse the existing result")
	}
}

func TestRunnerMissingResultFails(t *testing.T) {
	job := testJob(t)
	r := &Runner{Dialect: hspiceDialect{}, Command: "true"}
	err := r.Run(context.Background(), job)
	if err == nil {
		t.Fatal("missing result file accepted")
	}
	if k, _ := ibis.KindOf(err); k != ibis.SimulationFailed {
		t.Errorf("kind = %v, want SimulationFailed", k)
	}
}

func TestRunnerAbortMarkerFails(t *testing.T) {
	job := testJob(t)
	r := &Runner{Dialect: hspiceDialect{}, Command: "echo simulation aborted > {out}"}
	err := r.Run(context.Background(), job)
	if err == nil {
		t.Fatal("aborted run accepted")
	}
	if k, _ := ibis.KindOf(err); k != ibis.SimulationFailed {
		t.Errorf("kind = %v, want SimulationFailed", k)
	}
}

func TestRunnerNonZeroExitTolerated(t *testing.T) {
	// A non-zero exit is not fatal when the result file appeared.
	job := testJob(t)
	r := &Runner{Dialect: hspiceDialect{}, Command: "cp {in} {out}; exit 3"}
	if err := r.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunnerCancellation(t *testing.T) {
	job := testJob(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	// The placeholder keeps the job paths from being appended to sleep.
	r := &Runner{Dialect: hspiceDialect{}, Command: "sleep 10 # {in}"}
	err := r.Run(ctx, job)
	if err == nil {
		t.Fatal("cancelled run accepted")
	}
	var perr *ibis.Error
	if !errors.As(err, &perr) || perr.Kind != ibis.Cancelled {
		t.Errorf("error = %v, want Cancelled", err)
	}
	// The deck stays behind for debugging.
	if !hasContent(job.DeckPath) {
		t.Error("deck removed on cancellation")
	}
}

func TestRunnerCleanupPolicy(t *testing.T) {
	job := testJob(t)
	r := &Runner{Dialect: hspiceDialect{}, Command: "cp {in} {out}", Cleanup: true}
	if err := r.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	r.Finish(job)
	if _, err := os.Stat(job.DeckPath); !os.IsNotExist(err) {
		t.Error("cleanup left the deck behind")
	}
	if !hasContent(job.ResultPath) {
		t.Error("cleanup removed the result file")
	}
}

func TestExpandCommandForms(t *testing.T) {
	job := Job{DeckPath: "a.sp", ResultPath: "a.out", MsgPath: "a.msg"}
	if got := expandCommand("run {in} -o {out} 2>{msg}", job); got != "run a.sp -o a.out 2>a.msg" {
		t.Errorf("named template: %q", got)
	}
	if got := expandCommand("mysim", job); got != "mysim a.sp a.out a.msg" {
		t.Errorf("bare command: %q", got)
	}
}
