package history

import (
	"database/sql"
	"time"
)

const runColumns = "run_id, name, pipe_dir, outcome, error, started_at, finished_at, children, failed"

// Run is one journal row.
type Run struct {
	RunID    string
	Name     string
	PipeDir  string
	Outcome  string
	Error    string
	Started  time.Time
	Finished time.Time
	Children int
	Failed   int
}

// Duration is the wall-clock length of the run.
func (r Run) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// ChildExit is one recorded child of a run.
type ChildExit struct {
	Seq      int
	PID      int
	Label    string
	Kind     string
	Status   string
	ExitCode int
	Signal   string
	Duration time.Duration
	Error    string
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run         Run
		errMessage  sql.NullString
		startedRaw  string
		finishedRaw string
	)
	if err := scanner.Scan(
		&run.RunID,
		&run.Name,
		&run.PipeDir,
		&run.Outcome,
		&errMessage,
		&startedRaw,
		&finishedRaw,
		&run.Children,
		&run.Failed,
	); err != nil {
		return Run{}, err
	}
	run.Error = errMessage.String
	run.Started = parseTime(startedRaw)
	run.Finished = parseTime(finishedRaw)
	return run, nil
}

// Timestamps are stored as fixed-width UTC strings so that lexical order
// matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
