package model

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the final state of a flash session.
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeError     Outcome = "error" // the tool could not be started
)

// maxLogTail is the number of trailing log lines kept with a session.
const maxLogTail = 40

// ImageRecord describes one image as it was flashed.
type ImageRecord struct {
	Slot   string `json:"slot"`
	Offset string `json:"offset"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// FlashSession is a history entry for one run of the flashing tool.
type FlashSession struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Port       string        `json:"port"`
	Chip       string        `json:"chip"`
	Baud       int           `json:"baud"`
	Tool       string        `json:"tool"`
	Images     []ImageRecord `json:"images"`
	ExitCode   int           `json:"exit_code"`
	Outcome    Outcome       `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	LogTail    []string      `json:"log_tail,omitempty"`
}

// NewFlashSession starts a session record for the given plan.
func NewFlashSession(plan FlashPlan) FlashSession {
	return FlashSession{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Port:      plan.Port,
		Chip:      plan.Options.Chip,
		Baud:      plan.Options.Baud,
		Tool:      plan.ToolPath,
		Outcome:   OutcomeRunning,
	}
}

// ShortID returns the first eight characters of the session id.
func (s FlashSession) ShortID() string {
	if len(s.ID) < 8 {
		return s.ID
	}
	return s.ID[:8]
}

// Finish records the end of the session and keeps the tail of the log.
func (s *FlashSession) Finish(outcome Outcome, exitCode int, err error, log []string) {
	s.FinishedAt = time.Now().UTC()
	s.Outcome = outcome
	s.ExitCode = exitCode
	if err != nil {
		s.Error = err.Error()
	}
	if len(log) > maxLogTail {
		log = log[len(log)-maxLogTail:]
	}
	s.LogTail = append([]string(nil), log...)
}

// Duration returns how long the session ran.
func (s FlashSession) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Succeeded reports whether the tool exited cleanly.
func (s FlashSession) Succeeded() bool {
	return s.Outcome == OutcomeSuccess
}
