package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"bridgeagent/internal/app"
	"bridgeagent/internal/config"
)

var (
	serveDebug      bool
	serveConfigPath string
	serveHost       string
)

// serveCmd runs the agent.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge agent",
	Long: `Runs the agent until interrupted.

On startup the agent loads config.yaml from the configuration directory,
checks the bridge mappings against the bridges present on the host and
refuses to start when they do not match. It then:

  - polls for port notifications pushed by the controller and for new
    adapters detected on the host,
  - binds each new adapter's VLAN to its bridge and tags the adapter,
  - reports every adapter up, or down when it could not be confirmed,
  - reconciles all bridges every healAndOptimizeInterval seconds.

Configuration:
  Defaults are read from /etc/bridgeagent/config.yaml. Use --config-path to
  point at another directory and --host to override the host name the
  controller knows this hypervisor by.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveDebug, serveConfigPath, serveHost)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	application, err := app.NewApplication(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", config.DefaultConfigPath, "Configuration directory containing config.yaml")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host name reported to the controller (overrides config.yaml)")
}
