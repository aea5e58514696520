package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"bridgeagent/internal/api"
	"bridgeagent/internal/config"
	"bridgeagent/internal/model"
	"bridgeagent/internal/netbridge"
	"bridgeagent/pkg/logging"
)

var (
	inventoryConfigPath string
	inventoryOutput     string
	inventoryPartition  string
)

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Show the bridges and adapters the agent manages",
	Long: `Lists the managed Linux bridges with their primary and live VLANs, and
the virtual adapters attached to them with their partition and VLAN tags.

When config.yaml has no bridge mappings every bridge on the host is shown.`,
	Args: cobra.NoArgs,
	RunE: runInventory,
}

type bridgeView struct {
	ID           string `json:"id" yaml:"id"`
	PrimaryVLANs []int  `json:"primary_vlans" yaml:"primaryVlans"`
	VLANs        []int  `json:"vlans" yaml:"vlans"`
}

type adapterView struct {
	MAC         string `json:"mac" yaml:"mac"`
	PartitionID string `json:"partition_id" yaml:"partitionId"`
	BridgeID    string `json:"bridge_id" yaml:"bridgeId"`
	PVID        int    `json:"pvid" yaml:"pvid"`
	TaggedVLANs []int  `json:"tagged_vlans" yaml:"taggedVlans"`
}

type inventoryView struct {
	Bridges  []bridgeView  `json:"bridges" yaml:"bridges"`
	Adapters []adapterView `json:"adapters" yaml:"adapters"`
}

type inventorySource interface {
	api.BridgeAPI
	api.DeviceAPI
}

func runInventory(cmd *cobra.Command, args []string) error {
	logging.InitForCLI(logging.LevelWarn, cmd.ErrOrStderr())

	settings, err := config.LoadConfig(inventoryConfigPath)
	if err != nil {
		return err
	}
	mapping, err := model.ParseBridgeMappings(settings.Agent.BridgeMappings)
	if err != nil {
		return fmt.Errorf("invalid bridge mappings: %w", err)
	}

	backend, err := netbridge.Open(mapping)
	if err != nil {
		return err
	}
	defer backend.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	view, err := collectInventory(ctx, backend, inventoryPartition)
	if err != nil {
		return err
	}
	return renderInventory(cmd.OutOrStdout(), view, inventoryOutput)
}

func collectInventory(ctx context.Context, src inventorySource, partitionID string) (inventoryView, error) {
	bridges, err := src.ListBridges(ctx)
	if err != nil {
		return inventoryView{}, fmt.Errorf("failed to list bridges: %w", err)
	}
	adapters, err := src.ListAdapters(ctx, partitionID)
	if err != nil {
		return inventoryView{}, fmt.Errorf("failed to list adapters: %w", err)
	}

	view := inventoryView{
		Bridges:  make([]bridgeView, 0, len(bridges)),
		Adapters: make([]adapterView, 0, len(adapters)),
	}
	for _, b := range bridges {
		view.Bridges = append(view.Bridges, bridgeView{
			ID:           b.ID,
			PrimaryVLANs: emptyIfNil(model.SortedVLANs(b.PrimaryVLANs())),
			VLANs:        emptyIfNil(model.SortedVLANs(b.VLANs)),
		})
	}
	for _, a := range adapters {
		view.Adapters = append(view.Adapters, adapterView{
			MAC:         model.NormalizeMAC(a.MAC),
			PartitionID: a.PartitionID,
			BridgeID:    a.BridgeID,
			PVID:        a.PVID,
			TaggedVLANs: emptyIfNil(model.SortedVLANs(model.NewVLANSet(a.TaggedVLANs...))),
		})
	}
	return view, nil
}

func emptyIfNil(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

func renderInventory(w io.Writer, view inventoryView, output string) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(view)
	case "", "table":
		renderBridgeTable(w, view.Bridges)
		fmt.Fprintln(w)
		renderAdapterTable(w, view.Adapters)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (use table, json or yaml)", output)
	}
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(title)
	return t
}

func renderBridgeTable(w io.Writer, bridges []bridgeView) {
	t := newTable(w, "Bridges")
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("BRIDGE"),
		text.FgHiCyan.Sprint("PRIMARY VLANS"),
		text.FgHiCyan.Sprint("LIVE VLANS"),
	})
	for _, b := range bridges {
		t.AppendRow(table.Row{b.ID, joinVLANs(b.PrimaryVLANs), joinVLANs(b.VLANs)})
	}
	if len(bridges) == 0 {
		t.AppendRow(table.Row{text.FgYellow.Sprint("no managed bridges"), "", ""})
	}
	t.Render()
}

func renderAdapterTable(w io.Writer, adapters []adapterView) {
	t := newTable(w, "Adapters")
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("MAC"),
		text.FgHiCyan.Sprint("PARTITION"),
		text.FgHiCyan.Sprint("BRIDGE"),
		text.FgHiCyan.Sprint("PVID"),
		text.FgHiCyan.Sprint("TAGGED"),
	})
	for _, a := range adapters {
		t.AppendRow(table.Row{a.MAC, a.PartitionID, a.BridgeID, a.PVID, joinVLANs(a.TaggedVLANs)})
	}
	t.Render()
}

func joinVLANs(vlans []int) string {
	if len(vlans) == 0 {
		return "-"
	}
	parts := make([]string, len(vlans))
	for i, v := range vlans {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}

func init() {
	rootCmd.AddCommand(inventoryCmd)

	inventoryCmd.Flags().StringVar(&inventoryConfigPath, "config-path", config.DefaultConfigPath, "Configuration directory containing config.yaml")
	inventoryCmd.Flags().StringVarP(&inventoryOutput, "output", "o", "table", "Output format: table, json or yaml")
	inventoryCmd.Flags().StringVar(&inventoryPartition, "partition", "", "Only show adapters of this partition")
}
