package scrape

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DefaultBasename names the persisted JSON file when a job does not.
const DefaultBasename = "employee_fact_sheet"

// Job describes one fact sheet lookup on the portal.
type Job struct {
	Parent       string `json:"parent" yaml:"parent"`
	Organisation string `json:"organisation" yaml:"organisation"`
	// LastField is the free-text box under the Organisation dropdown,
	// usually an employee code.
	LastField string `json:"last_field,omitempty" yaml:"last_field"`
	// WaitTimeout is the wait budget in seconds; zero means the default.
	WaitTimeout  int    `json:"wait_timeout,omitempty" yaml:"wait_timeout"`
	Headless     *bool  `json:"headless,omitempty" yaml:"headless"`
	SaveJSON     bool   `json:"save_json,omitempty" yaml:"save_json"`
	SaveBasename string `json:"save_basename,omitempty" yaml:"save_basename"`
}

// Validate rejects jobs that cannot be run.
func (j Job) Validate() error {
	if strings.TrimSpace(j.Parent) == "" {
		return fmt.Errorf("%w: parent is required", ErrInvalidJob)
	}
	if strings.TrimSpace(j.Organisation) == "" {
		return fmt.Errorf("%w: organisation is required", ErrInvalidJob)
	}
	if j.WaitTimeout < 0 {
		return fmt.Errorf("%w: wait_timeout must not be negative", ErrInvalidJob)
	}
	if b := j.SaveBasename; b != "" {
		if b != filepath.Base(b) || b == "." || b == ".." || strings.ContainsAny(b, `/\`) {
			return fmt.Errorf("%w: save_basename %q must be a plain file name", ErrInvalidJob, b)
		}
	}
	return nil
}

// Wait returns the job's wait budget, or def when unset.
func (j Job) Wait(def time.Duration) time.Duration {
	if j.WaitTimeout <= 0 {
		return def
	}
	return time.Duration(j.WaitTimeout) * time.Second
}

// IsHeadless reports whether the browser should run headless. Unset means
// true.
func (j Job) IsHeadless() bool {
	return j.HeadlessOr(true)
}

// HeadlessOr reports the job's headless choice, or def when unset.
func (j Job) HeadlessOr(def bool) bool {
	if j.Headless == nil {
		return def
	}
	return *j.Headless
}

// Basename returns the persisted file name without extension.
func (j Job) Basename() string {
	if j.SaveBasename == "" {
		return DefaultBasename
	}
	return j.SaveBasename
}

// HasLastField reports whether the free-text box should be filled.
func (j Job) HasLastField() bool {
	return strings.TrimSpace(j.LastField) != ""
}
