// Package pipeline assembles sessions into cycles.
//
// A cycle is a Pipeline of Steps (DNS lookup, search session, crawl
// session). Steps run in order with Execute or all at once with
// RunConcurrent, and every report is handed to the configured Sinks.
// Loop repeats a cycle at a fixed interval until cancelled.
package pipeline
