package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "trafficcloak"

	// DefaultDataDir holds the corpus, word pools, the top-sites CSV and
	// the optional user-agent and proxy lists.
	DefaultDataDir = "data"

	// DefaultCallTimeout bounds a single driver call (load, link listing,
	// form submission). Chrome page loads on slow proxies need the headroom.
	DefaultCallTimeout = 30 * time.Second

	// DefaultInterval is the sleep between cycles in loop mode.
	DefaultInterval = 60 * time.Second

	// DefaultHostDelay is the minimum delay between two requests to the
	// same host issued by the HTTP driver.
	DefaultHostDelay = 1 * time.Second

	// DefaultUserAgent is sent when no user-agent list is configured.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

	// DefaultMaxBodySize limits the response body size read by the HTTP driver.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultDomainsFile is the rank,domain CSV used by the lookup action.
	DefaultDomainsFile = "top-1m.csv"

	// DefaultUserAgentsFile is the optional user-agent list.
	DefaultUserAgentsFile = "user-agents.txt"

	// DefaultProxiesFile is read when neither PROXIES nor PROXIES_FILE is set.
	DefaultProxiesFile = "proxies.txt"

	// DefaultServeAddress is the listen address of the status API.
	DefaultServeAddress = "127.0.0.1:8088"
)

// Driver kinds.
const (
	// DriverHTTP fetches pages with net/http. No JavaScript is executed.
	DriverHTTP = "http"
	// DriverChrome drives a headless Chrome instance.
	DriverChrome = "chrome"
)

// Config holds all configuration options for trafficcloak.
// It is populated from CLI flags, then merged with the optional
// configuration file, and passed down explicitly.
type Config struct {
	// Verbose enables debug log output.
	Verbose bool

	// LogFile redirects log output to a file. Empty means stderr.
	LogFile string

	// JSONLog switches the log output to JSON lines.
	JSONLog bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, FindConfigFile searches the default locations.
	ConfigFilePath string

	// Profiles holds the search and crawl profiles loaded from the
	// configuration file, or the built-in defaults.
	Profiles *File

	// DataDir is the directory holding corpus and list files.
	DataDir string

	// Driver selects the page driver (DriverHTTP or DriverChrome).
	Driver string

	// ChromePath overrides the Chrome executable. Empty means autodetect.
	ChromePath string

	// Headful shows the Chrome window instead of running headless.
	Headful bool

	// CallTimeout bounds each driver call.
	CallTimeout time.Duration

	// NoDwell disables the simulated reading time between page loads.
	NoDwell bool

	// Loop repeats the run cycle until interrupted.
	Loop bool

	// Interval is the sleep between cycles in loop mode.
	Interval time.Duration

	// Concurrent runs the lookup, search and crawl steps of a cycle in parallel.
	Concurrent bool

	// UseTor starts an embedded Tor daemon and adds it to the proxy pool.
	UseTor bool

	// TorStartupTimeout is the maximum time to wait for Tor to bootstrap.
	TorStartupTimeout time.Duration

	// RespectRobots makes the HTTP driver honor robots.txt.
	RespectRobots bool

	// HostDelay is the per-host politeness delay of the HTTP driver.
	HostDelay time.Duration

	// UserAgent is sent when no user-agent list file exists.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes.
	// Larger bodies are truncated. Zero means DefaultMaxBodySize.
	MaxBodySize int64

	// DBDir is the directory of the session history database.
	// Defaults to the XDG data directory.
	DBDir string

	// SaveToDB stores every finished session report in the history database.
	SaveToDB bool

	// JSONReport prints session reports as JSON.
	JSONReport bool

	// MarkdownReport prints session reports as Markdown.
	MarkdownReport bool

	// ReportFile writes reports to a file instead of stdout.
	ReportFile string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Profiles:          DefaultFile(),
		DataDir:           DefaultDataDir,
		Driver:            DriverHTTP,
		CallTimeout:       DefaultCallTimeout,
		Interval:          DefaultInterval,
		TorStartupTimeout: DefaultTorStartupTimeout,
		HostDelay:         DefaultHostDelay,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		DBDir:             XDGDataDir(),
		SaveToDB:          true,
	}
}

// DataFile returns name joined to DataDir. Absolute names are kept.
func (c *Config) DataFile(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// XDGDataDir returns the XDG data directory for trafficcloak.
// On Linux: ~/.local/share/trafficcloak
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for trafficcloak.
// On Linux: ~/.config/trafficcloak
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for trafficcloak.
// Chrome profiles live here.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if c.CallTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Driver != DriverHTTP && c.Driver != DriverChrome {
		return ErrUnknownDriver
	}

	if c.Loop && c.Interval < 0 {
		return ErrInvalidInterval
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.HostDelay < 0 {
		return ErrInvalidHostDelay
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.DataDir == "" {
		return ErrNoDataDir
	}

	if c.Profiles != nil {
		if err := c.Profiles.Validate(); err != nil {
			return err
		}
	}

	return nil
}
