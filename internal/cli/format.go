package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
	"github.com/pesio-ai/be-compliance-tasks/internal/service"
)

func statusLabel(s repository.TaskStatus) string {
	switch s {
	case repository.StatusDraft:
		return color.New(color.FgYellow).Sprint(s)
	case repository.StatusSubmitted:
		return color.New(color.FgCyan).Sprint(s)
	case repository.StatusApproved:
		return color.New(color.FgGreen).Sprint(s)
	case repository.StatusRejected:
		return color.New(color.FgRed).Sprint(s)
	default:
		return string(s)
	}
}

func levelLabel(level int) string {
	switch {
	case level == 0:
		return "-"
	case level >= 3:
		return color.New(color.FgHiRed, color.Bold).Sprintf("L%d", level)
	default:
		return color.New(color.FgHiMagenta).Sprintf("L%d", level)
	}
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func writeTasks(out io.Writer, tasks []*repository.TaskInstance) {
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCOMPLIANCE\tPERIOD\tMAKER\tCHECKER\tDUE\tSTATUS\tESC")
	fmt.Fprintln(w, "--\t----------\t------\t-----\t-------\t---\t------\t---")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID,
			t.ComplianceID,
			t.Period,
			t.MakerID,
			orDash(t.CheckerID),
			t.DueDate.Format(time.DateOnly),
			statusLabel(t.Status),
			levelLabel(t.EscalationLevel),
		)
	}
	w.Flush()
}

func writeTask(out io.Writer, t *repository.TaskInstance) {
	fmt.Fprintf(out, "Task: %s\n", t.ID)
	fmt.Fprintf(out, "Compliance: %s (%s)\n", t.ComplianceID, t.Period)
	fmt.Fprintf(out, "Maker: %s\n", t.MakerID)
	fmt.Fprintf(out, "Checker: %s\n", orDash(t.CheckerID))
	fmt.Fprintf(out, "Due: %s\n", t.DueDate.Format(time.DateOnly))
	fmt.Fprintf(out, "Status: %s\n", statusLabel(t.Status))
	fmt.Fprintf(out, "Escalation: %s\n", levelLabel(t.EscalationLevel))
	if t.MakerRemarks != nil {
		fmt.Fprintf(out, "Maker remarks: %s\n", *t.MakerRemarks)
	}
	if t.CheckerRemarks != nil {
		fmt.Fprintf(out, "Checker remarks: %s\n", *t.CheckerRemarks)
	}
	if t.DocumentRef != nil {
		fmt.Fprintf(out, "Document: %s\n", *t.DocumentRef)
	}
	if t.SubmittedAt != nil {
		fmt.Fprintf(out, "Submitted: %s\n", t.SubmittedAt.Format(time.RFC3339))
	}
	if t.CompletedAt != nil {
		fmt.Fprintf(out, "Completed: %s\n", t.CompletedAt.Format(time.RFC3339))
	}
}

func writeEscalations(out io.Writer, records []*repository.EscalationRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No escalations.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tTARGET\tSTATUS\tRAISED\tREASON")
	fmt.Fprintln(w, "-----\t------\t------\t------\t------")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			levelLabel(r.Level),
			r.Target,
			r.Status,
			r.CreatedAt.Format(time.RFC3339),
			r.Reason,
		)
	}
	w.Flush()
}

func writeEvent(out io.Writer, ev service.TaskEvent) {
	fmt.Fprintf(out, "%s  %-10s %s %s %s",
		ev.At.Format(time.RFC3339),
		ev.Event,
		ev.TaskID,
		statusLabel(ev.Status),
		levelLabel(ev.EscalationLevel),
	)
	if ev.ActorID != "" {
		fmt.Fprintf(out, " by %s", ev.ActorID)
	}
	fmt.Fprintln(out)
}
