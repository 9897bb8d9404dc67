// Package traversal runs one browsing session as a bounded random walk.
//
// The Engine is an explicit state machine:
//
//	Entering  -> OnPage | Exhausted | Failed
//	OnPage    -> Following | Exhausted | Failed
//	Following -> OnPage | Exhausted | Failed
//
// Entering runs the entry action (a fixed URL or a search query typed
// into a form). OnPage lists and filters the links of the current page.
// Following loads one of them at random. A successful load spends one unit
// of the depth budget; a failed load drops that candidate and goes back to
// OnPage with the same budget, so retries are bounded by the links of the
// page. Exhausted and Failed are terminal and always yield a report.
//
// The context is checked between states. Cancellation ends the session in
// Failed with reason cancelled.
package traversal
