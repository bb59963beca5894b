package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/grovetools/superstate/config"
	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/logging"
)

// CommandOptions holds the options every superstate command accepts.
type CommandOptions struct {
	ConfigFile string
	Verbose    bool
	JSONOutput bool
}

// NewStandardCommand creates a new command with the standard flags.
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to superstate.yml config file")

	return cmd
}

// GetOptions extracts common options from a command
func GetOptions(cmd *cobra.Command) CommandOptions {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	return CommandOptions{
		ConfigFile: configFile,
		Verbose:    verbose,
		JSONOutput: jsonOutput,
	}
}

// LoadConfig loads the configuration named by --config, or the layered
// configuration found from the working directory. With neither present the
// defaults are used and the working directory becomes the vault root.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	opts := GetOptions(cmd)
	if opts.ConfigFile != "" {
		return config.Load(opts.ConfigFile)
	}
	cfg, err := config.LoadDefault()
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, errors.ErrCodeConfigNotFound) {
		return config.Default(), nil
	}
	return nil, err
}

// GetLogger returns the component logger, configured from cfg and the
// command's flags.
func GetLogger(cmd *cobra.Command, cfg *config.Config, component string) *logrus.Entry {
	if err := logging.Configure(cfg); err != nil {
		logrus.WithError(err).Warn("Failed to parse 'logging' config")
	}
	entry := logging.NewLogger(component)

	opts := GetOptions(cmd)
	if opts.Verbose {
		entry.Logger.SetLevel(logrus.DebugLevel)
	}
	if opts.JSONOutput {
		entry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return entry
}
