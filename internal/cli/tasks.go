package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ai-orchestrator/pkg/orchestrator"
	"ai-orchestrator/pkg/store"
	"ai-orchestrator/pkg/types"
)

func (c *CLI) newSubmitCmd() *cobra.Command {
	var payload string

	cmd := &cobra.Command{
		Use:   "submit <task-type>",
		Short: "Enqueue a task",
		Long: `Enqueue a PENDING task of the given type.

The type is not checked against the agent registry; an unmapped type
fails when the orchestrator picks it up.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data types.JSON
			if payload != "" {
				if !json.Valid([]byte(payload)) {
					return fmt.Errorf("--payload is not valid JSON")
				}
				data = types.JSON(payload)
			}

			st, err := c.openStore()
			if err != nil {
				return err
			}
			task, err := c.orchestrator(st).Submit(cmd.Context(), types.TaskType(args[0]), data)
			if err != nil {
				return err
			}
			writeln(cmd.OutOrStdout(), "Submitted %s task %s", task.TaskType, task.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&payload, "payload", "p", "", `JSON payload handed to the agent, e.g. '{"triggered_by":"admin"}'`)
	return cmd
}

func (c *CLI) newTickCmd() *cobra.Command {
	var (
		count int
		drain bool
	)

	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run orchestrator ticks",
		Long: `Claim and process the oldest PENDING task, the same as one scheduler tick.

With --count N up to N ticks run; with --drain ticks run until the queue is empty.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore()
			if err != nil {
				return err
			}
			o := c.orchestrator(st)
			out := cmd.OutOrStdout()

			processed := 0
			for drain || processed < count {
				outcome, err := o.Tick(cmd.Context())
				if err != nil {
					return err
				}
				if !outcome.Claimed {
					break
				}
				processed++
				writeOutcome(cmd, outcome)
			}
			if processed == 0 {
				writeln(out, "%s", helpStyle.Render("No pending tasks"))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "maximum number of ticks to run")
	cmd.Flags().BoolVar(&drain, "drain", false, "tick until no PENDING task remains")
	return cmd
}

func writeOutcome(cmd *cobra.Command, outcome *orchestrator.Outcome) {
	out := cmd.OutOrStdout()
	task := outcome.Task
	line := fmt.Sprintf("%s %-22s %s", task.ID, task.TaskType, renderStatus(string(task.Status), 0))
	if outcome.ActionLog != nil {
		line += fmt.Sprintf("  log %s %s", outcome.ActionLog.ID, renderStatus(string(outcome.ActionLog.Status), 0))
	}
	if outcome.Error != "" {
		line += "  " + outcome.Error
	}
	writeln(out, "%s", line)
}

func (c *CLI) newTasksCmd() *cobra.Command {
	var (
		status   string
		taskType string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.TaskFilter{Limit: limit}
			if status != "" {
				s := types.TaskStatus(status)
				if !s.Valid() {
					return fmt.Errorf("invalid status: %s", status)
				}
				filter.Status = &s
			}
			if taskType != "" {
				t := types.TaskType(taskType)
				filter.Type = &t
			}

			st, err := c.openStore()
			if err != nil {
				return err
			}
			tasks, err := st.ListTasks(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				writeln(out, "%s", helpStyle.Render("No tasks"))
				return nil
			}
			writeln(out, "%s", headerStyle.Render(fmt.Sprintf("%-36s  %-22s  %-12s  %s", "ID", "TYPE", "STATUS", "CREATED")))
			for _, t := range tasks {
				writeln(out, "%-36s  %-22s  %s  %s", t.ID, t.TaskType, renderStatus(string(t.Status), 12), t.CreatedAt.Local().Format(time.DateTime))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "filter by status (PENDING, IN_PROGRESS, COMPLETED, FAILED)")
	cmd.Flags().StringVarP(&taskType, "type", "t", "", "filter by task type")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of tasks")
	return cmd
}

func (c *CLI) newRequeueCmd() *cobra.Command {
	var stale bool

	cmd := &cobra.Command{
		Use:   "requeue [task-id]",
		Short: "Reset stuck IN_PROGRESS tasks to PENDING",
		Args: func(cmd *cobra.Command, args []string) error {
			if stale {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore()
			if err != nil {
				return err
			}
			o := c.orchestrator(st)
			out := cmd.OutOrStdout()

			if stale {
				n, err := o.RequeueStale(cmd.Context())
				if err != nil {
					return err
				}
				writeln(out, "Requeued %d stale task(s)", n)
				return nil
			}

			task, err := o.Requeue(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			writeln(out, "Requeued task %s (%s)", task.ID, renderStatus(string(task.Status), 0))
			return nil
		},
	}
	cmd.Flags().BoolVar(&stale, "stale", false, "requeue every task IN_PROGRESS longer than orchestrator.stale_after")
	return cmd
}
