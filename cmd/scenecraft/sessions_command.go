package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"scenecraft/internal/archive"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"archive"},
		Short:   "Inspect exported sessions in the archive",
	}
	cmd.AddCommand(newSessionsListCommand(ctx))
	cmd.AddCommand(newSessionsShowCommand(ctx))
	cmd.AddCommand(newSessionsRestoreCheckCommand(ctx))
	return cmd
}

func withArchive(cmd *cobra.Command, ctx *commandContext, fn func(*archive.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := archive.Open(cmd.Context(), cfg.ArchivePath())
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newSessionsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd, ctx, func(store *archive.Store) error {
				summaries, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, summaries)
				}
				out := cmd.OutOrStdout()
				if len(summaries) == 0 {
					fmt.Fprintln(out, "No archived sessions")
					return nil
				}
				rows := make([][]string, 0, len(summaries))
				for _, s := range summaries {
					rows = append(rows, []string{
						s.ID,
						s.Title,
						shortID(s.SessionID),
						strconv.Itoa(s.Stages),
						s.CreatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(out, renderTable([]string{"Archive", "Title", "Session", "Stages", "Created"}, rows, 3))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print summaries as JSON")
	return cmd
}

func newSessionsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show <archive-id>",
		Short: "Show the artifacts saved with an archived session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd, ctx, func(store *archive.Store) error {
				rec, err := store.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, rec)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s (format %s, session %s)\n", rec.Title, rec.FormatVersion, rec.SessionID)
				rows := make([][]string, 0, len(rec.Snapshot.Slots))
				for _, slot := range rec.Snapshot.Slots {
					state := "fresh"
					if slot.Demoted {
						state = "stale"
					}
					rows = append(rows, []string{
						string(slot.Artifact.Stage),
						state,
						shortID(slot.Artifact.ID),
						slot.Artifact.Provider,
						strconv.Itoa(len(slot.History)),
					})
				}
				fmt.Fprintln(out, renderTable([]string{"Stage", "State", "Artifact", "Provider", "History"}, rows, 4))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the record as JSON")
	return cmd
}

func newSessionsRestoreCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore-check <archive-id>",
		Short: "Verify an archived session can be restored with its blobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			ctrl, err := rt.Restore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer func() { _ = rt.Sessions().Delete(ctrl.ID()) }()

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderSectionHeader("Restore "+args[0], colorize))
			for _, st := range ctrl.States() {
				fmt.Fprintln(out, renderStatusLine(st.Stage.Title(), stateKind(st.State.String()), st.State.String(), colorize))
			}
			if _, err := ctrl.ExportFinal(); err != nil {
				fmt.Fprintln(out, renderStatusLine("Export", statusWarn, "final video not exportable", colorize))
				return nil
			}
			fmt.Fprintln(out, renderStatusLine("Export", statusOK, "final video ready", colorize))
			return nil
		},
	}
}
