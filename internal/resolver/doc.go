// Package resolver resolves host names through an ordered chain of
// strategies, typically DNS-over-HTTPS first and the system resolver after
// it.
//
// The first strategy that returns at least one record wins. A strategy that
// fails or answers with nothing is logged at debug level and the next one is
// tried. Empty answers from every strategy produce an empty Result, which is
// not an error; ErrChainExhausted is reserved for the case where every
// strategy failed outright.
package resolver
