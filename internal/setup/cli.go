package setup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// NewCommand returns the "setup" command tree of mcp-server-lite.
func NewCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the server with a desktop MCP client",
		Long: `Register mcp-server-lite with a desktop MCP client by editing the
client's JSON configuration. Other servers in the file are left untouched.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config-file", "", "desktop client config file (default: OS location)")

	cmd.AddCommand(
		newDesktopCommand(&configPath),
		newStatusCommand(&configPath),
		newRemoveCommand(&configPath),
	)
	return cmd
}

func newDesktopCommand(configPath *string) *cobra.Command {
	opts := Options{}
	var yes bool

	cmd := &cobra.Command{
		Use:   "desktop",
		Short: "Add or update the server entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			opts.ConfigPath = *configPath

			if opts.BinaryPath == "" {
				if exe, err := os.Executable(); err == nil {
					opts.BinaryPath = exe
				}
			}

			path, err := resolveConfigPath(opts.ConfigPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Config file:   %s\n", path)
			fmt.Fprintf(out, "Server binary: %s\n", opts.BinaryPath)
			if opts.DataDir != "" {
				fmt.Fprintf(out, "Data dir:      %s\n", opts.DataDir)
			}

			if !yes && !confirm(cmd.InOrStdin(), out, "Proceed with configuration? [Y/n]: ", true) {
				fmt.Fprintln(out, "Configuration cancelled.")
				return nil
			}

			if _, err := Configure(opts); err != nil {
				return fmt.Errorf("failed to configure desktop client: %w", err)
			}
			if err := EnsureDataDir(opts.DataDir); err != nil {
				fmt.Fprintf(out, "Warning: %v\n", err)
			}

			fmt.Fprintln(out, "Configured. Restart the desktop client to load the server.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.BinaryPath, "binary", "b", "", "path to mcp-server-lite (default: this executable)")
	cmd.Flags().StringVarP(&opts.DataDir, "data-dir", "d", "", "data directory (default ~/.periop-risk-mcp)")
	cmd.Flags().StringVar(&opts.ParameterEncoding, "encoding", "", "parameter encoding for new calculations: legacy or tagged")
	cmd.Flags().StringVar(&opts.MeasurementsURL, "measurements-url", "", "record service enabling patient_trend")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newStatusCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current setup status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := GetStatus(*configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Config file:  %s\n", status.ConfigPath)
			fmt.Fprintf(out, "Configured:   %s\n", yesNo(status.Configured))
			if status.Configured {
				fmt.Fprintf(out, "Binary:       %s (%s)\n", status.ServerPath, found(status.BinaryFound))
			}
			fmt.Fprintf(out, "Data dir:     %s (%s)\n", status.DataDir, found(status.DataDirExists))
			fmt.Fprintf(out, "Database:     %s\n", found(status.DatabaseExists))
			for _, issue := range status.Issues {
				fmt.Fprintf(out, "Issue: %s\n", issue)
			}
			if !status.Healthy() {
				return fmt.Errorf("setup is incomplete")
			}
			return nil
		},
	}
}

func newRemoveCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove",
		Short: "Remove the server entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := Remove(*configPath)
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s.\n", ServerName)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s was not configured.\n", ServerName)
			}
			return nil
		},
	}
}

func confirm(in io.Reader, out io.Writer, prompt string, def bool) bool {
	fmt.Fprint(out, prompt)
	response, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.TrimSpace(strings.ToLower(response)) {
	case "":
		return def
	case "y", "yes":
		return true
	default:
		return false
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func found(b bool) string {
	if b {
		return "found"
	}
	return "missing"
}
