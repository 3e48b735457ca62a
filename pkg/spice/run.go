package spice

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/OpenTraceLab/spice2ibis/pkg/ibis"
)

// Runner spawns the external simulator for one deck at a time and applies
// the iterate and cleanup policies. It is the only place the pipeline
// blocks on a subprocess.
type Runner struct {
	Dialect Dialect

	// Command is the user template; {in}, {out}, and {msg} expand to the
	// deck, result, and message paths. Empty means the dialect default.
	Command string

	// Iterate skips the simulator when the expected result file already
	// exists and is newer than the deck.
	Iterate bool

	// Cleanup removes intermediate artifacts after a successful parse;
	// the simulator log is always kept on failure.
	Cleanup bool

	// Timeout bounds one simulator run; zero means no limit.
	Timeout int // seconds

	Verbose bool
}

// Job names the files of one simulator invocation.
type Job struct {
	DeckPath   string
	ResultPath string
	MsgPath    string
}

// JobFor derives the conventional file names from a deck base (no
// extension): base.sp in, base.out result, base.msg captured output.
func JobFor(base string) Job {
	return Job{
		DeckPath:   base + ".sp",
		ResultPath: base + ".out",
		MsgPath:    base + ".msg",
	}
}

// Run invokes the simulator for a written deck. A non-zero exit is not
// itself fatal: the run fails only when the expected result file is
// missing or empty afterwards. Cancellation kills the subprocess and
// leaves all files in place for debugging.
func (r *Runner) Run(ctx context.Context, job Job) error {
	if r.Iterate && newerThan(job.ResultPath, job.DeckPath) {
		if r.Verbose {
			log.Printf("reusing %s (iterate)", job.ResultPath)
		}
		return nil
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.Timeout)*time.Second)
		defer cancel()
	}

	cmdline := r.Command
	if strings.TrimSpace(cmdline) == "" {
		cmdline = r.Dialect.DefaultCommand(job.DeckPath, job.ResultPath, job.MsgPath)
	} else {
		cmdline = expandCommand(cmdline, job)
	}

	if r.Verbose {
		log.Printf("running: %s", cmdline)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
	output, err := cmd.CombinedOutput()

	// Keep simulator chatter for diagnosis regardless of outcome.
	if len(output) > 0 {
		appendFile(job.MsgPath, output)
	}

	if ctx.Err() != nil {
		return ibis.Errorf(ibis.Cancelled, "simulator terminated: %v", ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return ibis.Errorf(ibis.SimulationFailed, "cannot start simulator: %w", err)
		}
		// fall through: exit status alone does not decide
	}

	r.adoptListing(job)

	if !hasContent(job.ResultPath) {
		return ibis.Errorf(ibis.SimulationFailed,
			"simulator produced no result file %s (log kept at %s)", job.ResultPath, job.MsgPath)
	}
	if marker := r.findMarker(job, r.Dialect.AbortMarkers()); marker != "" {
		return ibis.Errorf(ibis.SimulationFailed, "simulator aborted (%q in output)", marker)
	}
	return nil
}

// CheckConvergence reports a non-convergence marker in the result file.
func (r *Runner) CheckConvergence(job Job) bool {
	return fileContains(job.ResultPath, r.Dialect.ConvergenceMarkers())
}

// Finish applies the cleanup policy after a successful parse.
func (r *Runner) Finish(job Job) {
	if !r.Cleanup {
		return
	}
	base := strings.TrimSuffix(job.DeckPath, filepath.Ext(job.DeckPath))
	for _, path := range []string{
		job.DeckPath,
		job.MsgPath,
		base + ".st0",
		base + ".ic",
		base + ".ic0",
		base + ".lis",
	} {
		if err := os.Remove(path); err == nil && r.Verbose {
			log.Printf("removed %s", path)
		}
	}
}

// adoptListing renames an HSPICE-style .lis listing to the expected result
// path when the simulator ignored the -o extension.
func (r *Runner) adoptListing(job Job) {
	if hasContent(job.ResultPath) {
		return
	}
	base := strings.TrimSuffix(job.ResultPath, filepath.Ext(job.ResultPath))
	for _, cand := range []string{base + ".lis", job.ResultPath + ".lis"} {
		if hasContent(cand) {
			if err := os.Rename(cand, job.ResultPath); err == nil {
				return
			}
		}
	}
}

func (r *Runner) findMarker(job Job, markers []string) string {
	for _, path := range []string{job.ResultPath, job.MsgPath} {
		if m := containedMarker(path, markers); m != "" {
			return m
		}
	}
	return ""
}

func expandCommand(template string, job Job) string {
	rep := strings.NewReplacer("{in}", job.DeckPath, "{out}", job.ResultPath, "{msg}", job.MsgPath)
	out := rep.Replace(template)
	if out == template && !strings.Contains(template, "{") {
		out = fmt.Sprintf("%s %s %s %s", template, job.DeckPath, job.ResultPath, job.MsgPath)
	}
	return out
}

func newerThan(path, ref string) bool {
	fi, err := os.Stat(path)
	if err != nil || fi.Size() == 0 {
		return false
	}
	ri, err := os.Stat(ref)
	if err != nil {
		return true
	}
	return !fi.ModTime().Before(ri.ModTime())
}

func hasContent(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Size() > 0
}

func fileContains(path string, needles []string) bool {
	return containedMarker(path, needles) != ""
}

func containedMarker(path string, needles []string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	text := strings.ToLower(string(data))
	for _, n := range needles {
		if strings.Contains(text, strings.ToLower(n)) {
			return n
		}
	}
	return ""
}

func appendFile(path string, data []byte) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	f.Write(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		f.Write([]byte{'\n'})
	}
}
