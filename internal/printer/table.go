package printer

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/slok/aihq/internal/model"
)

const maxPromptWidth = 60

// TablePrinter prints the app information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintTaskList prints tasks in a table format.
func (t *TablePrinter) PrintTaskList(tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tPROJECT\tSTATUS\tPROMPT\tCREATED")
	for _, task := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", task.ID, task.ProjectID, task.Status, truncate(task.Prompt, maxPromptWidth), TimeAgo(task.CreatedAt))
	}

	return nil
}

// PrintTask prints detailed task status and its logs.
func (t *TablePrinter) PrintTask(task model.Task, logs []model.TaskLog) error {
	fmt.Fprintf(t.writer, "ID:         %s\n", task.ID)
	fmt.Fprintf(t.writer, "Project:    %s\n", task.ProjectID)
	fmt.Fprintf(t.writer, "Status:     %s\n", task.Status)
	fmt.Fprintf(t.writer, "Prompt:     %s\n", task.Prompt)
	fmt.Fprintf(t.writer, "Created:    %s\n", FormatTimestamp(task.CreatedAt))
	if task.StartedAt != nil {
		fmt.Fprintf(t.writer, "Started:    %s\n", FormatTimestamp(*task.StartedAt))
		fmt.Fprintf(t.writer, "Duration:   %s\n", FormatDuration(task.StartedAt, task.CompletedAt))
	}
	if task.Result != nil {
		fmt.Fprintf(t.writer, "Summary:    %s\n", task.Result.Summary)
		fmt.Fprintf(t.writer, "Actions:    %d\n", task.Result.Actions)
	}
	if task.Error != "" {
		fmt.Fprintf(t.writer, "Error:      %s\n", task.Error)
	}

	if len(logs) == 0 {
		return nil
	}
	fmt.Fprintln(t.writer, "\nLogs:")
	return t.PrintTaskLogs(logs)
}

// PrintTaskLogs prints task logs one per line.
func (t *TablePrinter) PrintTaskLogs(logs []model.TaskLog) error {
	for _, l := range logs {
		fmt.Fprintf(t.writer, "  %s  %-7s  %s\n", l.Timestamp.UTC().Format("15:04:05"), l.Kind, l.Message)
	}
	return nil
}

// PrintProjectList prints projects in a table format.
func (t *TablePrinter) PrintProjectList(projects []model.Project) error {
	if len(projects) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "NAME\tID\tREPOSITORY\tBRANCH\tDEPLOY")
	for _, p := range projects {
		deploy := "-"
		if p.VercelProjectID != "" {
			deploy = p.VercelProjectID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.ID, p.GitHubRepo, p.RepoBranch(), deploy)
	}

	return nil
}

// PrintQueueStats prints the job counts of the queue.
func (t *TablePrinter) PrintQueueStats(stats model.QueueStats) error {
	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "WAITING\tACTIVE\tCOMPLETED\tFAILED")
	fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", stats.Waiting, stats.Active, stats.Completed, stats.Failed)

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
