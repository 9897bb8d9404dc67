package main

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/trafficcloak/internal/config"
)

//go:embed templates/trafficcloak.yaml
var configTemplate []byte

// errConfigExists is returned by init when the target exists and --force is not set.
var errConfigExists = errors.New("configuration file already exists")

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented configuration template",
		Long: `Init writes a commented .trafficcloak template with the built-in search
and crawl profiles, the corpus and list file names, and disabled examples
for proxies and DNS-over-HTTPS endpoints.

Examples:
  # Write .trafficcloak to the current directory
  trafficcloak init

  # Write to the XDG config location
  trafficcloak init -o ~/.config/trafficcloak/.trafficcloak

  # Replace an existing file
  trafficcloak init -f

  # Print the template instead of writing it
  trafficcloak init --print > profiles.yaml`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile, "Where to write the template")
	cmd.Flags().BoolP("force", "f", false, "Replace an existing file")
	cmd.Flags().Bool("print", false, "Print the template to stdout and write nothing")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	printOnly, err := cmd.Flags().GetBool("print")
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if printOnly {
		_, err := out.Write(configTemplate)
		return err
	}

	if err := writeConfigTemplate(outputPath, force); err != nil {
		return err
	}

	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintf(out, "Put the corpus and list files under %q or point dataDir at them.\n", config.DefaultDataDir)
	return nil
}

// writeConfigTemplate creates path with mode 0600. Without force an
// existing file is left untouched.
func writeConfigTemplate(path string, force bool) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0600) //nolint:gosec // path comes from the user
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s (use -f to overwrite)", errConfigExists, path)
	}
	if err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to write configuration file: %w", cerr)
		}
	}()

	if _, err := f.Write(configTemplate); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return nil
}
