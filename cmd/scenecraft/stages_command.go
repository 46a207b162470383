package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scenecraft/internal/api"
	"scenecraft/internal/preflight"
	"scenecraft/internal/stagegraph"
)

func newStagesCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stages",
		Short: "List pipeline stages and whether their providers are configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			defs := api.FromDefinitions(stagegraph.Default(), preflight.StageReadiness(cfg))
			if jsonOutput {
				return writeJSON(cmd, api.StageListResponse{Stages: defs})
			}
			rows := make([][]string, 0, len(defs))
			for _, def := range defs {
				rows = append(rows, []string{
					def.Stage,
					strings.Join(def.DependsOn, ", "),
					def.Capability,
					strings.Join(def.Editable, ", "),
					yesNo(def.Ready),
					def.Detail,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Stage", "Depends on", "Capability", "Editable", "Ready", "Detail"}, rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print stages as JSON")
	return cmd
}
