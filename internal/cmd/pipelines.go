package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/cibox/internal/catalog"
	"github.com/Iron-Ham/cibox/internal/config"
	"github.com/Iron-Ham/cibox/internal/logging"
	"github.com/Iron-Ham/cibox/internal/styles"
)

var pipelinesCmd = &cobra.Command{
	Use:   "pipelines",
	Short: "List the pipelines and what they depend on",
	Args:  cobra.NoArgs,
	RunE:  runPipelines,
}

// pipelineCommands are the pipelines exposed as subcommands. The table is
// static so building the command tree never assembles a catalog.
var pipelineCommands = []struct {
	name     string
	short    string
	requires string
}{
	{catalog.Provision, "Install all needed packages in the container", ""},
	{catalog.CloneBackend, "Clone the backend repository", "provision (unless git is installed)"},
	{catalog.SetupBackend, "Install Python packages, init DB", ""},
	{catalog.RunTests, "Run tests and report coverage", ""},
}

func init() {
	rootCmd.AddCommand(pipelinesCmd)

	for _, p := range pipelineCommands {
		rootCmd.AddCommand(newPipelineCmd(p.name, p.short, p.requires))
	}
}

func newPipelineCmd(name, short, requires string) *cobra.Command {
	long := short + "."
	if requires != "" {
		long += "\n\nRuns first when needed: " + requires
	}
	return &cobra.Command{
		Use:   name,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, name)
		},
	}
}

func runPipeline(cmd *cobra.Command, name string) error {
	e, err := openEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.Close()

	_, err = e.sandbox.Run(cmd.Context(), name)
	return err
}

func runPipelines(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cat, err := newCatalog(cfg, logging.NopLogger(), cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, name := range cat.Names() {
		entry, err := cat.Get(name)
		if err != nil {
			return err
		}
		p, err := cat.Pipeline(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s  %s (%d steps)\n", styles.Header.Render(name), entry.Description, len(p.Steps))
		for _, d := range entry.Requires {
			fmt.Fprintf(out, "    requires %s unless %s\n", d.Pipeline, d.Description)
		}
	}
	return nil
}
