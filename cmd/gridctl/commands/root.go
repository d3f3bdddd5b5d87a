package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/Adidier/agents/internal/printer"
	"github.com/Adidier/agents/pkg/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	redisURL     string
	instanceName string
	serverURL    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gridctl",
	Short: "gridctl - inspect a grid telemetry coordinator",
	Long: `gridctl inspects a running grid telemetry coordinator.

It lists registered participants through the registration API, and reads
snapshots, registry audits and the fallback file written by the aggregation
loop.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command. Called by main.main().
func Execute() error {
	// We print formatted coloured errors through the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis-url", envOr("REDIS_URL", "redis://localhost:6379"), "Redis URL of the primary sink")
	rootCmd.PersistentFlags().StringVarP(&instanceName, "name", "n", envOr("COORDINATOR_INSTANCE", "default"), "Coordinator instance name")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("COORDINATOR_URL", "http://localhost:8001"), "Coordinator registration API base URL")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printerFor(cmd *cobra.Command) *printer.Printer {
	return printer.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// connect opens and pings the primary sink for the selected instance.
func connect(ctx context.Context, p *printer.Printer) (*telemetry.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, p.Error(
			"invalid Redis URL",
			err.Error(),
			map[string]string{"redis-url": redisURL},
			[]string{"Use the form redis://host:port/db"},
		)
	}

	client, err := telemetry.NewClient(opts, instanceName)
	if err != nil {
		return nil, p.Error("invalid instance name", err.Error(), nil, []string{"Pass --name <instance>"})
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, p.Error(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", redisURL),
			map[string]string{"error": err.Error()},
			[]string{
				"Check the coordinator's persistence.redis_url setting",
				"Read snapshots written while Redis was down:\n  gridctl fallback",
			},
		)
	}

	return client, nil
}
