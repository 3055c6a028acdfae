package operations

import "github.com/kebairia/invbackup/internal/backuplog"

// Status classifies the outcome of an operation.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusDeclined Status = "declined" // skipped on purpose, not an error
	StatusFailed   Status = "failed"
)

// Result is what every operation returns: a success flag and a message that
// can be shown to the end user as is.
type Result struct {
	Success bool   `json:"success"`
	Status  Status `json:"status"`
	Message string `json:"message"`

	// Err carries one of the package sentinels for declined and failed results.
	Err error `json:"-"`

	// Event is the log entry written by a successful backup.
	Event *backuplog.Event `json:"event,omitempty"`

	// DisplacedPath is where a restore preserved the previous database file.
	DisplacedPath string `json:"displacedPath,omitempty"`

	// RestartRequested asks the host to reopen the database after a restore.
	RestartRequested bool `json:"restartRequested,omitempty"`
}

// Declined reports whether the operation was skipped on purpose.
func (r Result) Declined() bool { return r.Status == StatusDeclined }

func succeeded(msg string) Result {
	return Result{Success: true, Status: StatusSuccess, Message: msg}
}

func declined(err error, msg string) Result {
	return Result{Status: StatusDeclined, Message: msg, Err: err}
}

func failed(err error, msg string) Result {
	return Result{Status: StatusFailed, Message: msg, Err: err}
}
