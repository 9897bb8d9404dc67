// Package model defines the data structures shared across trafficcloak.
//
// This package contains the following main types:
//   - Link: a candidate hyperlink reported by a page driver
//   - Report: the outcome of one traversal, search or lookup session
//   - TerminalState and Reason: how a session ended and why
//
// The types are kept free of behavior beyond small helpers so that the
// traversal engine, the drivers, the history store and the report writers
// can all depend on them without import cycles. Reports are serialized to
// JSON for the history database and for machine-readable output.
package model
