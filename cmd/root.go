package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for bridgeagent.
var rootCmd = &cobra.Command{
	Use:   "bridgeagent",
	Short: "Bind controller networks to the VLANs of Linux bridges",
	Long: `bridgeagent runs on a hypervisor and keeps the VLAN membership of its
Linux bridges in line with the virtual adapters the network controller has
assigned to the host. It provisions new adapters, tags them with their
network's VLAN, reports them up or down to the controller, and periodically
reconciles the bridges, removing VLANs that are no longer in use.`,
	// SilenceUsage keeps runtime errors from printing the usage text.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "bridgeagent version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
