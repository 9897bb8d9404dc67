// Package main provides the entry point for the trafficcloak CLI.
//
// trafficcloak generates decoy browsing traffic: random web searches,
// wanders through wiki pages and DNS lookups of popular domains, spread
// over a pool of proxies.
//
// Usage:
//
//	trafficcloak run --loop
//	trafficcloak search
//	trafficcloak crawl --depth 8
//	trafficcloak lookup example.com
//
// See --help for all available options.
package main

// main is the entry point for trafficcloak.
func main() {
	Execute()
}
