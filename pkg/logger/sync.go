package logger

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/yuya-takeyama/mirrorsync/pkg/executor"
	"github.com/yuya-takeyama/mirrorsync/pkg/planner"
)

// SyncLogger prints one aws-cli style line per action and a final summary.
// It is safe for concurrent use, so Event can be the executor's progress hook.
type SyncLogger struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer

	source string
	dest   string
	quiet  bool
	dryRun bool
}

func NewSyncLogger(out, errOut io.Writer, source, dest string, quiet, dryRun bool) *SyncLogger {
	return &SyncLogger{
		out:    out,
		errOut: errOut,
		source: source,
		dest:   dest,
		quiet:  quiet,
		dryRun: dryRun,
	}
}

func (l *SyncLogger) printf(w io.Writer, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(w, format, args...)
}

// Action prints the line for a planned action. Keep prints nothing.
func (l *SyncLogger) Action(a planner.Action) {
	if l.quiet {
		return
	}

	prefix := ""
	if l.dryRun {
		prefix = "(dryrun) "
	}

	key := a.Record.Key
	switch a.Operation {
	case planner.OpAdd, planner.OpOverwrite:
		l.printf(l.out, "%supload: %s to %s\n", prefix, JoinLocation(l.source, key), JoinLocation(l.dest, key))
	case planner.OpDelete:
		l.printf(l.out, "%sdelete: %s\n", prefix, JoinLocation(l.dest, key))
	}
}

// Preview prints every action of the plan.
func (l *SyncLogger) Preview(actions []planner.Action) {
	for _, a := range actions {
		l.Action(a)
	}
}

// Event is an executor progress hook: it prints an action when it starts
// and reports failures when it finishes. Actions stopped by cancellation are
// not failures.
func (l *SyncLogger) Event(ev executor.Event) {
	switch ev.Phase {
	case executor.EventStarted:
		l.Action(ev.Action)
	case executor.EventFinished:
		if ev.Err != nil && !ev.Cancelled {
			l.printf(l.errOut, "ERROR: %s failed: %s: %v\n", ev.Action.Operation, ev.Action.Record.Key, ev.Err)
		}
	}
}

// PrintSummary prints the totals of a finished run. In quiet mode it only
// prints when the run did not succeed.
func (l *SyncLogger) PrintSummary(o *executor.Outcome) {
	if l.quiet && o.Status == executor.StatusSucceeded {
		return
	}

	var b []byte
	b = fmt.Appendf(b, "\n=== Summary ===\n")
	b = fmt.Appendf(b, "Status: %s\n", o.Status)
	b = fmt.Appendf(b, "Uploaded: %d files (%s)\n", o.Added+o.Overwritten, humanize.IBytes(uint64(o.Bytes)))
	b = fmt.Appendf(b, "Deleted: %d files\n", o.Deleted)
	if o.Kept > 0 {
		b = fmt.Appendf(b, "Unchanged: %d files\n", o.Kept)
	}
	if o.Interrupted > 0 {
		b = fmt.Appendf(b, "Interrupted: %d\n", o.Interrupted)
	}
	if o.Failed > 0 {
		b = fmt.Appendf(b, "Errors: %d\n", o.Failed)
	}
	b = fmt.Appendf(b, "Duration: %s", o.Elapsed.Round(time.Millisecond))
	if secs := o.Elapsed.Seconds(); o.Bytes > 0 && secs > 0 {
		b = fmt.Appendf(b, " (%s/s)", humanize.IBytes(uint64(float64(o.Bytes)/secs)))
	}
	b = append(b, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(b)
}

// PrintPlanSummary prints the totals of a plan without executing it.
func (l *SyncLogger) PrintPlanSummary(s planner.Summary) {
	if l.quiet {
		return
	}
	l.printf(l.out, "\nPlan: %d to add, %d to overwrite, %d to delete, %d unchanged (%s to transfer)\n",
		s.Add, s.Overwrite, s.Delete, s.Keep, humanize.IBytes(uint64(s.Bytes)))
}

// JoinLocation appends key to a printed location root.
func JoinLocation(root, key string) string {
	if root == "" {
		return key
	}
	if root[len(root)-1] == '/' {
		return root + key
	}
	return root + "/" + key
}
