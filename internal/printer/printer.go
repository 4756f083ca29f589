package printer

import (
	"io"

	"github.com/slok/aihq/internal/model"
)

// Printer knows how to print the app information in different formats.
type Printer interface {
	PrintTaskList(tasks []model.Task) error
	PrintTask(task model.Task, logs []model.TaskLog) error
	PrintTaskLogs(logs []model.TaskLog) error
	PrintProjectList(projects []model.Project) error
	PrintQueueStats(stats model.QueueStats) error
	PrintMessage(msg string) error
}

// New returns the printer for the format (table, json).
func New(format string, w io.Writer) Printer {
	if format == "json" {
		return NewJSONPrinter(w)
	}
	return NewTablePrinter(w)
}
