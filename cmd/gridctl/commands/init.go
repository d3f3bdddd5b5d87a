package commands

import (
	"github.com/Adidier/agents/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	initDir   string
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter coordinator.yml",
	Long: `Write a starter coordinator.yml with every setting at its default.

The file is validated with the same loader the coordinator uses.

Use --force to overwrite an existing coordinator.yml.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initDir, "dir", ".", "Directory to write coordinator.yml into")
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing coordinator.yml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	created, err := scaffold.Initialize(initDir, forceInit, cmd.ErrOrStderr())
	if err != nil {
		return printerFor(cmd).Error("initialization failed", err.Error(), nil, nil)
	}

	scaffold.PrintSuccess(cmd.OutOrStdout(), created)
	return nil
}

