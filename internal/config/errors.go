package config

import "errors"

// Configuration validation errors returned by Config.Validate and
// File.Validate.
var (
	// ErrInvalidTimeout is returned when the driver call timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid call timeout: must be positive")

	// ErrUnknownDriver is returned when the driver is neither "http" nor "chrome".
	ErrUnknownDriver = errors.New("unknown driver: use \"http\" or \"chrome\"")

	// ErrInvalidInterval is returned when the loop interval is negative.
	ErrInvalidInterval = errors.New("invalid interval: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidHostDelay is returned when the per-host delay is negative.
	ErrInvalidHostDelay = errors.New("invalid host delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrNoDataDir is returned when the data directory is empty.
	ErrNoDataDir = errors.New("no data directory specified")

	// ErrInvalidDepth is returned when a profile depth is negative.
	ErrInvalidDepth = errors.New("invalid depth: must be non-negative")

	// ErrInvalidLinksPerPage is returned when a profile links-per-page is not positive.
	ErrInvalidLinksPerPage = errors.New("invalid links per page: must be positive")

	// ErrInvalidDwell is returned when a dwell range is negative or inverted.
	ErrInvalidDwell = errors.New("invalid dwell range: min and max must be non-negative and min <= max")

	// ErrNoEntry is returned when a profile has neither an entry URL nor a search URL.
	ErrNoEntry = errors.New("profile has no entry URL")

	// ErrUnknownPreset is returned when a deny preset name is not known.
	ErrUnknownPreset = errors.New("unknown deny preset")
)
