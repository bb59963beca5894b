package cmd

import (
	"github.com/spf13/cobra"

	"github.com/grovetools/superstate/pkg/paths"
)

// PathsOutput represents the XDG-compliant paths used by superstate.
type PathsOutput struct {
	ConfigDir  string `json:"config_dir"`
	DataDir    string `json:"data_dir"`
	StateDir   string `json:"state_dir"`
	CacheDir   string `json:"cache_dir"`
	RuntimeDir string `json:"runtime_dir"`
	Socket     string `json:"socket"`
	PidFile    string `json:"pid_file"`
	Database   string `json:"database"`
}

func NewPathsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Print the XDG-compliant paths used by superstate",
		Long: `Print the XDG-compliant paths used by superstate.

This command outputs the paths in JSON format, making it easy to parse from
scripts and other tools.

The paths follow the XDG Base Directory Specification:
- config_dir: Configuration files (superstate.yml)
- state_dir: Persistent state (database, logs)
- runtime_dir: Socket and pid file of the running daemon
- database: Default location of the cached index`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd, PathsOutput{
				ConfigDir:  paths.ConfigDir(),
				DataDir:    paths.DataDir(),
				StateDir:   paths.StateDir(),
				CacheDir:   paths.CacheDir(),
				RuntimeDir: paths.RuntimeDir(),
				Socket:     paths.SocketPath(),
				PidFile:    paths.PidFilePath(),
				Database:   paths.DatabasePath(),
			})
		},
	}

	return cmd
}
