// Package tasks owns the crawl task model and the per-task lifecycle: a task
// is accepted, rendered, extracted, reported, and discarded. Nothing is
// persisted; the registry only mirrors what is currently in flight.
package tasks

import (
	"errors"
	"net/url"
	"strings"
)

// Status represents the current state of a task
type Status string

const (
	StatusAccepted   Status = "accepted"
	StatusRendering  Status = "rendering"
	StatusExtracting Status = "extracting"
	StatusReporting  Status = "reporting"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Task is one accepted crawl request. It lives in memory for the duration of
// its run and is discarded once the callback has been sent.
type Task struct {
	ID             string
	ParentID       string
	TargetURL      string
	Cookies        map[string]string
	RemainingDepth int
	CurrentDepth   int
}

// CrawlRequest is the POST /crawl body. RemainingDepth and MaxDepth are
// pointers so an absent field can be told apart from an explicit zero;
// remaining_depth wins when both are present.
type CrawlRequest struct {
	TaskID         string            `json:"task_id"`
	ParentID       string            `json:"parent_id"`
	TargetURL      string            `json:"target_url"`
	Cookies        map[string]string `json:"cookies"`
	RemainingDepth *int              `json:"remaining_depth"`
	MaxDepth       *int              `json:"max_depth"`
	CurrentDepth   int               `json:"current_depth"`
}

// Validate checks the request against the acceptance rules. The returned
// error message is safe to surface to the caller.
func (r *CrawlRequest) Validate() error {
	if strings.TrimSpace(r.TaskID) == "" {
		return errors.New("task_id is required")
	}
	if strings.TrimSpace(r.ParentID) == "" {
		return errors.New("parent_id is required")
	}
	if strings.TrimSpace(r.TargetURL) == "" {
		return errors.New("target_url is required")
	}

	parsed, err := url.Parse(r.TargetURL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return errors.New("target_url must be an absolute URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("target_url must use http or https")
	}

	if r.RemainingDepth != nil && *r.RemainingDepth < 0 {
		return errors.New("remaining_depth must not be negative")
	}
	if r.MaxDepth != nil && *r.MaxDepth < 0 {
		return errors.New("max_depth must not be negative")
	}
	if r.CurrentDepth < 0 {
		return errors.New("current_depth must not be negative")
	}
	return nil
}

// Task converts a validated request into the task model, applying the depth
// and cookie defaults.
func (r *CrawlRequest) Task() *Task {
	depth := 0
	switch {
	case r.RemainingDepth != nil:
		depth = *r.RemainingDepth
	case r.MaxDepth != nil:
		depth = *r.MaxDepth
	}

	cookies := r.Cookies
	if cookies == nil {
		cookies = map[string]string{}
	}

	return &Task{
		ID:             r.TaskID,
		ParentID:       r.ParentID,
		TargetURL:      r.TargetURL,
		Cookies:        cookies,
		RemainingDepth: depth,
		CurrentDepth:   r.CurrentDepth,
	}
}
