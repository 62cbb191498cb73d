package cmd

import (
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the container",
	Long: `Stage the secrets file and create the container from the configured
distribution triple. An existing container is left as it is.`,
	Args: cobra.NoArgs,
	RunE: runCreate,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the container and wait for its network",
	Args:  cobra.NoArgs,
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the container",
	Long: `Stop the container. A failed stop request is followed by a graceful
shutdown; the command fails only when the shutdown does not complete in time.`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Stop and remove the container",
	Args:  cobra.NoArgs,
	RunE:  runDestroy,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the container state and addresses",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var exportCmd = &cobra.Command{
	Use:   "export [archive]",
	Short: "Archive the container rootfs as a gzip tarball",
	Long: `Stop the container and write its root filesystem to a gzip tarball.
The archive path defaults to export.archive.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.Close()
	return e.sandbox.Create(cmd.Context())
}

func runStart(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.Close()
	return e.sandbox.Start(cmd.Context())
}

func runStop(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.Close()
	return e.sandbox.Stop(cmd.Context())
}

func runDestroy(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.Close()
	return e.sandbox.Destroy(cmd.Context())
}

// runStatus only reads, so it does not wait for the lock.
func runStatus(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd, false)
	if err != nil {
		return err
	}
	defer e.Close()
	_, err = e.sandbox.Status(cmd.Context())
	return err
}

func runExport(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.Close()

	archive := e.cfg.Export.Archive
	if len(args) == 1 {
		archive = args[0]
	}
	return e.sandbox.Export(cmd.Context(), archive)
}
