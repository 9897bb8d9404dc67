package model

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies which action produced a Report.
type Kind string

const (
	// KindSearch is a session that starts from a synthesized search query.
	KindSearch Kind = "search"

	// KindCrawl is a session that starts from a fixed entry URL.
	KindCrawl Kind = "crawl"

	// KindLookup is a DNS lookup through the resolver chain.
	KindLookup Kind = "lookup"
)

// TerminalState is the final state of a session.
type TerminalState string

const (
	// StateExhausted means the session ran out of links or depth budget.
	// It is the normal way for a traversal to end.
	StateExhausted TerminalState = "exhausted"

	// StateFailed means the session could not continue because of an error.
	StateFailed TerminalState = "failed"

	// StateCompleted is used by non-traversal sessions (lookups) that
	// finished their single operation.
	StateCompleted TerminalState = "completed"
)

// Reason refines the terminal state.
type Reason string

const (
	// ReasonDepthReached means the depth budget reached zero.
	ReasonDepthReached Reason = "depth_reached"

	// ReasonNoLinks means the current page had no eligible links left.
	ReasonNoLinks Reason = "no_links"

	// ReasonEntryFailed means the entry action could not be completed.
	ReasonEntryFailed Reason = "entry_failed"

	// ReasonDriverError means the driver failed outside of a navigation
	// (for example while enumerating links).
	ReasonDriverError Reason = "driver_error"

	// ReasonCancelled means the context was cancelled or timed out.
	ReasonCancelled Reason = "cancelled"

	// ReasonConfiguration means the session could not start because of
	// a configuration problem (missing corpus file, empty pool).
	ReasonConfiguration Reason = "configuration"

	// ReasonResolved means a lookup produced at least one record.
	ReasonResolved Reason = "resolved"

	// ReasonNoRecords means a lookup finished without any record.
	ReasonNoRecords Reason = "no_records"

	// ReasonResolverError means every resolver strategy failed.
	ReasonResolverError Reason = "resolver_error"
)

// Report is the structured outcome of one session. Callers receive a
// Report in every case, including failures.
type Report struct {
	// ID uniquely identifies the session.
	ID string `json:"id"`

	// Kind is the action that produced this report.
	Kind Kind `json:"kind"`

	// TerminalState is how the session ended.
	TerminalState TerminalState `json:"terminal_state"`

	// Reason refines TerminalState.
	Reason Reason `json:"reason"`

	// PagesVisited counts successful page loads, including the entry page.
	PagesVisited int `json:"pages_visited"`

	// FailedNavigations counts loads that failed during Following.
	FailedNavigations int `json:"failed_navigations"`

	// LastLocation is the driver location when the session ended.
	LastLocation string `json:"last_location,omitempty"`

	// Entry describes how the session started (URL or query phrase).
	Entry string `json:"entry,omitempty"`

	// Proxy is the egress path used, without credentials. Empty means direct.
	Proxy string `json:"proxy,omitempty"`

	// Trail lists the locations visited, in order.
	Trail []string `json:"trail,omitempty"`

	// Records holds resolved addresses for lookup sessions.
	Records []string `json:"records,omitempty"`

	// FailureReason is the error message when TerminalState is failed.
	FailureReason string `json:"failure_reason,omitempty"`

	// Err is the triggering error for failed sessions. Not serialized.
	Err error `json:"-"`

	// StartedAt is when the session started.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the session reached a terminal state.
	FinishedAt time.Time `json:"finished_at"`
}

// NewReport creates a Report with a fresh ID and the start time set.
func NewReport(kind Kind) *Report {
	return &Report{
		ID:        uuid.NewString(),
		Kind:      kind,
		Trail:     make([]string, 0),
		StartedAt: time.Now(),
	}
}

// Finish records the terminal state and reason. A non-nil err marks the
// failure reason and is kept for errors.Is checks by the caller.
func (r *Report) Finish(state TerminalState, reason Reason, err error) {
	r.TerminalState = state
	r.Reason = reason
	r.FinishedAt = time.Now()
	if err != nil {
		r.Err = err
		r.FailureReason = err.Error()
	}
}

// Visit records a successful page load at the given location.
func (r *Report) Visit(location string) {
	r.PagesVisited++
	r.LastLocation = location
	r.Trail = append(r.Trail, location)
}

// Failed reports whether the session ended in the failed state.
func (r *Report) Failed() bool {
	return r.TerminalState == StateFailed
}

// Duration returns how long the session ran.
// It returns zero for sessions that have not finished.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
