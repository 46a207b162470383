package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scenecraft/internal/api"
	"scenecraft/internal/orchestrator"
	"scenecraft/internal/services"
	"scenecraft/internal/stage"
	"scenecraft/internal/stagegraph"
)

type generateOutput struct {
	Session api.SessionDetail   `json:"session"`
	Export  *api.ExportResponse `json:"export,omitempty"`
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		premise       string
		through       string
		overridesPath string
		exportResult  bool
		jsonOutput    bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the pipeline for a new session",
		Long: "Create a session and run each stage in order, stopping after --through.\n" +
			"Overrides are read from a YAML file keyed by stage name.",
		RunE: func(cmd *cobra.Command, args []string) error {
			last := stage.Video
			if strings.TrimSpace(through) != "" {
				parsed, err := stage.Parse(through)
				if err != nil {
					return err
				}
				last = parsed
			}
			overrides, err := loadOverrides(overridesPath)
			if err != nil {
				return err
			}
			if p := strings.TrimSpace(premise); p != "" {
				if overrides == nil {
					overrides = make(map[stage.ID]orchestrator.Overrides)
				}
				if overrides[stage.Script] == nil {
					overrides[stage.Script] = orchestrator.Overrides{}
				}
				overrides[stage.Script][stagegraph.KeyPremise] = p
			}
			if exportResult && last != stage.Video {
				return services.Wrap(services.ErrValidation, "", "generate", "--export needs --through video", nil)
			}

			rt, err := ctx.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			ctrl, err := rt.Sessions().Create()
			if err != nil {
				return err
			}
			ctxRun := services.WithSessionID(cmd.Context(), ctrl.ID())
			out := cmd.OutOrStdout()
			colorize := !jsonOutput && shouldColorize(out)
			if !jsonOutput {
				fmt.Fprintln(out, renderSectionHeader("Session "+ctrl.ID(), colorize))
			}

			for _, id := range stage.All() {
				report, err := ctrl.RequestRun(ctxRun, id, overrides[id])
				if err != nil {
					if !jsonOutput {
						fmt.Fprintln(out, renderStatusLine(id.Title(), statusError, services.MarkerName(err), colorize))
					}
					return err
				}
				if !jsonOutput {
					fmt.Fprintln(out, renderStatusLine(id.Title(), statusOK, describeReport(report), colorize))
				}
				if id == last {
					break
				}
			}

			result := generateOutput{Session: api.FromSessionDetail(ctrl)}
			if exportResult {
				res, err := rt.Exporter().Export(ctxRun, ctrl)
				if err != nil {
					return err
				}
				exported := api.FromExportResult(res)
				result.Export = &exported
				if !jsonOutput {
					fmt.Fprintln(out, renderStatusLine("Export", statusOK, res.VideoPath, colorize))
					if res.ArchiveID != "" {
						fmt.Fprintln(out, renderStatusLine("Archive", statusInfo, res.ArchiveID, colorize))
					}
				}
			}
			if jsonOutput {
				return writeJSON(cmd, result)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&premise, "premise", "p", "", "Story premise for the script stage")
	cmd.Flags().StringVar(&through, "through", "", "Last stage to run (default video)")
	cmd.Flags().StringVarP(&overridesPath, "overrides", "o", "", "YAML file of per-stage overrides")
	cmd.Flags().BoolVar(&exportResult, "export", false, "Export the final video when the pipeline completes")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the session as JSON")
	return cmd
}

func describeReport(report orchestrator.Report) string {
	parts := []string{shortID(report.Artifact.ID) + " via " + report.Artifact.Provider}
	if report.Attempts > 1 {
		parts = append(parts, fmt.Sprintf("%d attempts", report.Attempts))
	}
	if report.CacheHit {
		parts = append(parts, "cached")
	}
	if len(report.Demoted) > 0 {
		names := make([]string, 0, len(report.Demoted))
		for _, id := range report.Demoted {
			names = append(names, string(id))
		}
		parts = append(parts, "demoted "+strings.Join(names, ", "))
	}
	return strings.Join(parts, "; ")
}
