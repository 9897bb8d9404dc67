package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/trafficcloak/internal/config"
	applog "github.com/nao1215/trafficcloak/internal/log"
)

// app carries the validated configuration and the logger of one command
// invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
}

// newApp builds the configuration from flags and the config file and
// opens the logger.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	logger, closeLog, err := applog.Open(cfg.LogFile, cmd.ErrOrStderr(), cfg.JSONLog, cfg.Verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	slog.SetDefault(logger)

	return &app{cfg: cfg, logger: logger, closeLog: closeLog}, nil
}

func (a *app) close() {
	if err := a.closeLog(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
	}
}

// buildConfig creates a Config from the global flags and the flags the
// command defines.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.Verbose, err = flags.GetBool("verbose"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.LogFile, err = flags.GetString("log-file"); err != nil {
		return nil, err
	}
	if cfg.JSONLog, err = flags.GetBool("json-log"); err != nil {
		return nil, err
	}
	if cfg.DataDir, err = flags.GetString("data-dir"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	noSave, err := flags.GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave

	if flags.Lookup("driver") != nil {
		if err := readSessionFlags(cmd, cfg); err != nil {
			return nil, err
		}
	}
	if flags.Lookup("json") != nil {
		if err := readReportFlags(cmd, cfg); err != nil {
			return nil, err
		}
	}

	// An explicit config path must exist; otherwise the defaults apply
	// when no file is found.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.Profiles, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	return cfg, nil
}

// addSessionFlags registers the flags shared by commands that browse.
func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().String("driver", config.DriverHTTP, `Page driver: "http" or "chrome"`)
	cmd.Flags().String("chrome-path", "", "Chrome executable (default: autodetect)")
	cmd.Flags().Bool("headful", false, "Show the Chrome window instead of running headless")
	cmd.Flags().DurationP("timeout", "t", config.DefaultCallTimeout, "Timeout for each page load")
	cmd.Flags().Bool("no-dwell", false, "Do not wait between page loads")
	cmd.Flags().Bool("tor", false, "Start an embedded Tor daemon and add it to the proxy pool")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout, "Timeout for embedded Tor startup")
	cmd.Flags().Bool("robots", false, "Honor robots.txt (HTTP driver only)")
	cmd.Flags().Duration("host-delay", config.DefaultHostDelay, "Minimum delay between requests to one host")
	cmd.Flags().String("user-agent", config.DefaultUserAgent, "User agent used when no user-agent list exists")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize, "Maximum response body size in bytes")
}

func readSessionFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	var err error
	if cfg.Driver, err = flags.GetString("driver"); err != nil {
		return err
	}
	if cfg.ChromePath, err = flags.GetString("chrome-path"); err != nil {
		return err
	}
	if cfg.Headful, err = flags.GetBool("headful"); err != nil {
		return err
	}
	if cfg.CallTimeout, err = flags.GetDuration("timeout"); err != nil {
		return err
	}
	if cfg.NoDwell, err = flags.GetBool("no-dwell"); err != nil {
		return err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return err
	}
	if cfg.RespectRobots, err = flags.GetBool("robots"); err != nil {
		return err
	}
	if cfg.HostDelay, err = flags.GetDuration("host-delay"); err != nil {
		return err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return err
	}
	return nil
}

// addReportFlags registers the report output flags.
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false, "Output JSON reports (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown reports (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "", "Write reports to the specified file (creates directories if needed)")
}

func readReportFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	var err error
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return err
	}
	return nil
}

// openOutput returns the report destination: cfg.ReportFile or stdout.
func openOutput(cfg *config.Config, stdout io.Writer) (io.Writer, func() error, error) {
	if cfg.ReportFile == "" {
		return stdout, func() error { return nil }, nil
	}

	dir := filepath.Dir(cfg.ReportFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports may name the proxies in use.
	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// joinClose runs every close function and joins their errors.
func joinClose(fns ...func() error) error {
	errs := make([]error, 0, len(fns))
	for _, fn := range fns {
		if fn != nil {
			errs = append(errs, fn())
		}
	}
	return errors.Join(errs...)
}
