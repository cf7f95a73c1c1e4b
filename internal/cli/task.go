package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
	"github.com/pesio-ai/be-compliance-tasks/internal/rpc"
)

// TaskCmd returns the task command group.
func TaskCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Work with compliance tasks",
		Long:  "List, inspect and move compliance tasks through the maker-checker workflow",
	}

	cmd.AddCommand(taskListCmd(opts))
	cmd.AddCommand(taskGetCmd(opts))
	cmd.AddCommand(taskEscalationsCmd(opts))
	cmd.AddCommand(taskSubmitCmd(opts))
	cmd.AddCommand(taskReviewCmd(opts, rpc.MethodApprove, "approve", "Approve a submitted task", false))
	cmd.AddCommand(taskReviewCmd(opts, rpc.MethodReject, "reject", "Reject a submitted task", false))
	cmd.AddCommand(taskReviewCmd(opts, rpc.MethodSendBack, "send-back", "Return a submitted task to the maker", true))
	cmd.AddCommand(taskReopenCmd(opts))
	return cmd
}

func taskListCmd(opts *options) *cobra.Command {
	req := &rpc.ListTasksRequest{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks visible to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range req.Statuses {
				if !repository.TaskStatus(s).Valid() {
					return fmt.Errorf("--status must be one of draft, submitted, approved, rejected")
				}
			}

			c, err := opts.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := opts.callContext(cmd.Context())
			defer cancel()

			tasks, err := c.ListTasks(ctx, req)
			if err != nil {
				return fmt.Errorf("failed to list tasks: %w", err)
			}
			writeTasks(cmd.OutOrStdout(), tasks)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&req.Statuses, "status", nil, "filter by status (repeatable)")
	f.StringVar(&req.MakerID, "maker", "", "filter by maker id")
	f.StringVar(&req.CheckerID, "checker", "", "filter by checker id")
	f.StringVar(&req.ComplianceID, "compliance", "", "filter by compliance id")
	f.BoolVar(&req.OverdueOnly, "overdue", false, "only open tasks past their due date")
	return cmd
}

func taskGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get [task-id]",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := opts.callContext(cmd.Context())
			defer cancel()

			task, err := c.GetTask(ctx, args[0])
			if err != nil {
				return fmt.Errorf("task not found: %w", err)
			}
			writeTask(cmd.OutOrStdout(), task)
			return nil
		},
	}
}

func taskEscalationsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "escalations [task-id]",
		Short: "Show a task's escalation history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.dial()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := opts.callContext(cmd.Context())
			defer cancel()

			records, err := c.GetEscalations(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load escalations: %w", err)
			}
			writeEscalations(cmd.OutOrStdout(), records)
			return nil
		},
	}
}

func taskSubmitCmd(opts *options) *cobra.Command {
	var remarks, file string

	cmd := &cobra.Command{
		Use:   "submit [task-id]",
		Short: "Submit a draft task for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &rpc.TransitionRequest{TaskID: args[0], Remarks: remarks}
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read document: %w", err)
				}
				req.DocumentName = filepath.Base(file)
				req.Document = data
			}
			return transition(cmd, opts, rpc.MethodSubmit, req)
		},
	}
	cmd.Flags().StringVarP(&remarks, "remarks", "m", "", "submission remarks (required)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "evidence document to attach")
	_ = cmd.MarkFlagRequired("remarks")
	return cmd
}

func taskReviewCmd(opts *options, method, use, short string, remarksRequired bool) *cobra.Command {
	var remarks string

	cmd := &cobra.Command{
		Use:   use + " [task-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transition(cmd, opts, method, &rpc.TransitionRequest{TaskID: args[0], Remarks: remarks})
		},
	}
	cmd.Flags().StringVarP(&remarks, "remarks", "m", "", "review remarks")
	if remarksRequired {
		_ = cmd.MarkFlagRequired("remarks")
	}
	return cmd
}

func taskReopenCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reopen [task-id]",
		Short: "Reopen a rejected task as a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transition(cmd, opts, rpc.MethodReopen, &rpc.TransitionRequest{TaskID: args[0]})
		},
	}
}

func transition(cmd *cobra.Command, opts *options, method string, req *rpc.TransitionRequest) error {
	c, err := opts.dial()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := opts.callContext(cmd.Context())
	defer cancel()

	task, err := c.Transition(ctx, method, req)
	if err != nil {
		return fmt.Errorf("failed to %s task: %w", method, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Task %s is now %s\n", task.ID, statusLabel(task.Status))
	return nil
}
