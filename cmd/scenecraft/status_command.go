package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scenecraft/internal/api"
	"scenecraft/internal/stage"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running server's status and live sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("contact server: %w", err)
			}
			sessions, err := client.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, struct {
					Status   *api.DaemonStatus    `json:"status"`
					Sessions []api.SessionSummary `json:"sessions"`
				}{status, sessions})
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderSectionHeader("Server", colorize))
			fmt.Fprintln(out, renderStatusLine("Address", statusInfo, status.Bind, colorize))
			fmt.Fprintln(out, renderStatusLine("PID", statusInfo, fmt.Sprint(status.PID), colorize))
			fmt.Fprintln(out, renderStatusLine("Video mode", statusInfo, status.VideoMode, colorize))
			fmt.Fprintln(out, renderStatusLine("Dev mode", statusInfo, yesNo(status.DevMode), colorize))
			for _, dep := range status.Dependencies {
				detail := dep.Command
				if !dep.Available {
					detail = dep.Detail
				}
				fmt.Fprintln(out, renderStatusLine(dep.Name, readyKind(dep.Available, dep.Optional), detail, colorize))
			}

			fmt.Fprintln(out, renderSectionHeader(fmt.Sprintf("Sessions (%d)", len(sessions)), colorize))
			for _, s := range sessions {
				states := make([]string, 0, len(s.States))
				for _, id := range stage.All() {
					states = append(states, string(id)+"="+s.States[string(id)])
				}
				kind := statusInfo
				if s.Running {
					kind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine(shortID(s.ID), kind, strings.Join(states, " "), colorize))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print status as JSON")
	return cmd
}

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var (
		follow bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print log events from the running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var since uint64
			for {
				resp, err := client.Events(cmd.Context(), since, limit, follow)
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return err
				}
				for _, evt := range resp.Events {
					line := fmt.Sprintf("%s %-5s %s", evt.Timestamp, evt.Level, evt.Message)
					if evt.SessionID != "" {
						line += " session=" + shortID(evt.SessionID)
					}
					if evt.Stage != "" {
						line += " stage=" + evt.Stage
					}
					fmt.Fprintln(out, line)
				}
				since = resp.Next
				if !follow {
					return nil
				}
				if len(resp.Events) == 0 {
					time.Sleep(250 * time.Millisecond)
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep waiting for new events")
	cmd.Flags().IntVarP(&limit, "limit", "n", 200, "Maximum events per request")
	return cmd
}
