// Package config holds the trafficcloak configuration: CLI-level options,
// the search and crawl profiles, and the optional YAML configuration file.
package config
