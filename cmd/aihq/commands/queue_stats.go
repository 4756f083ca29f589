package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/aihq/internal/printer"
)

// QueueStatsCommand shows the job counts of the execution queue.
type QueueStatsCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewQueueStatsCommand returns the queue stats command.
func NewQueueStatsCommand(rootCmd *RootCommand, queueCmd *kingpin.CmdClause) *QueueStatsCommand {
	c := &QueueStatsCommand{rootCmd: rootCmd}

	c.Cmd = queueCmd.Command("stats", "Show the number of jobs by state.")
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c QueueStatsCommand) Name() string { return c.Cmd.FullCommand() }

func (c QueueStatsCommand) Run(ctx context.Context) error {
	repo, err := c.rootCmd.newRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	q, closeQueue, err := c.rootCmd.newQueue(ctx, repo, queueOptions{})
	if err != nil {
		return err
	}
	defer closeQueue()

	stats, err := q.Stats(ctx)
	if err != nil {
		return fmt.Errorf("could not get queue stats: %w", err)
	}

	return printer.New(c.format, c.rootCmd.Stdout).PrintQueueStats(stats)
}
