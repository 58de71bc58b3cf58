package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ai-orchestrator/pkg/store"
	"ai-orchestrator/pkg/types"
)

func (c *CLI) newLogsCmd() *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List agent action log entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.ActionLogFilter{Limit: limit}
			if status != "" {
				s := types.ActionStatus(status)
				if !s.Valid() {
					return fmt.Errorf("invalid status: %s", status)
				}
				filter.Status = &s
			}

			st, err := c.openStore()
			if err != nil {
				return err
			}
			logs, err := st.ListActionLogs(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(logs) == 0 {
				writeln(out, "%s", helpStyle.Render("No action logs"))
				return nil
			}
			writeln(out, "%s", headerStyle.Render(fmt.Sprintf("%-36s  %-16s  %-28s  %-16s  %s", "ID", "AGENT", "ACTION", "STATUS", "CREATED")))
			for _, l := range logs {
				writeln(out, "%-36s  %-16s  %-28s  %s  %s",
					l.ID, l.AgentName, l.ActionType, renderStatus(string(l.Status), 16), l.CreatedAt.Local().Format(time.DateTime))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "filter by status, e.g. PENDING_APPROVAL")
	cmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultActionLogLimit, "maximum number of entries")
	return cmd
}

// newDecisionCmd 构建 approve / reject 命令
func (c *CLI) newDecisionCmd(use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <log-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore()
			if err != nil {
				return err
			}
			gate := c.gate(st)

			var entry *types.ActionLog
			if use == "approve" {
				entry, err = gate.Approve(cmd.Context(), args[0])
			} else {
				entry, err = gate.Reject(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			writeln(cmd.OutOrStdout(), "%s %s by %s: %s", entry.ID, entry.ActionType, entry.AgentName, renderStatus(string(entry.Status), 0))
			return nil
		},
	}
}
