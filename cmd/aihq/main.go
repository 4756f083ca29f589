package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/slok/aihq/cmd/aihq/commands"
	"github.com/slok/aihq/internal/log"
	loglogrus "github.com/slok/aihq/internal/log/logrus"
)

const (
	// Version is the application version (set via ldflags).
	Version = "dev"
)

// Run runs the main application.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	app := kingpin.New("aihq", "Prompt driven repository task pipeline.")
	app.DefaultEnvars()
	rootCmd := commands.NewRootCommand(app)

	// Setup commands (registers flags).
	serveCmd := commands.NewServeCommand(rootCmd, app)
	workerCmd := commands.NewWorkerCommand(rootCmd, app)

	// Task subcommands share a parent command.
	taskCmd := app.Command("task", "Manage tasks.")
	taskCreateCmd := commands.NewTaskCreateCommand(rootCmd, taskCmd)
	taskExecuteCmd := commands.NewTaskExecuteCommand(rootCmd, taskCmd)
	taskStatusCmd := commands.NewTaskStatusCommand(rootCmd, taskCmd)
	taskListCmd := commands.NewTaskListCommand(rootCmd, taskCmd)

	// Project subcommands share a parent command.
	projectCmd := commands.NewProjectCommand(app)
	projectAddCmd := commands.NewProjectAddCommand(rootCmd, projectCmd)
	projectListCmd := commands.NewProjectListCommand(rootCmd, projectCmd)
	projectImportCmd := commands.NewProjectImportCommand(rootCmd, projectCmd)
	projectSyncCmd := commands.NewProjectSyncCommand(rootCmd, projectCmd)

	queueCmd := app.Command("queue", "Inspect the execution queue.")
	queueStatsCmd := commands.NewQueueStatsCommand(rootCmd, queueCmd)

	cmds := map[string]commands.Command{
		serveCmd.Name():         serveCmd,
		workerCmd.Name():        workerCmd,
		taskCreateCmd.Name():    taskCreateCmd,
		taskExecuteCmd.Name():   taskExecuteCmd,
		taskStatusCmd.Name():    taskStatusCmd,
		taskListCmd.Name():      taskListCmd,
		projectAddCmd.Name():    projectAddCmd,
		projectListCmd.Name():   projectListCmd,
		projectImportCmd.Name(): projectImportCmd,
		projectSyncCmd.Name():   projectSyncCmd,
		queueStatsCmd.Name():    queueStatsCmd,
	}

	// Parse command.
	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	// Set standard input/output.
	rootCmd.Stdin = stdin
	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr

	// Commands that print tables or JSON don't log unless --debug is set.
	printerCommands := map[string]bool{
		"task list":    true,
		"task status":  true,
		"project list": true,
		"queue stats":  true,
	}
	if printerCommands[cmdName] && !rootCmd.Debug {
		rootCmd.NoLog = true
	}

	// Set logger.
	rootCmd.Logger = getLogger(*rootCmd)

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				rootCmd.Logger.Debugf("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Execute command.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				err := cmds[cmdName].Run(ctx)
				if err != nil {
					return fmt.Errorf("%q command failed: %w", cmdName, err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// getLogger returns the application logger.
func getLogger(config commands.RootCommand) log.Logger {
	if config.NoLog {
		return log.Noop
	}

	logrusLog := logrus.New()
	logrusLog.Out = config.Stderr // Stdout is for the printers.
	logrusLogEntry := logrus.NewEntry(logrusLog)

	if config.Debug {
		logrusLogEntry.Logger.SetLevel(logrus.DebugLevel)
	}

	switch config.LoggerType {
	case commands.LoggerTypeDefault:
		logrusLogEntry.Logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !config.NoColor,
			DisableColors: config.NoColor,
		})
	case commands.LoggerTypeJSON:
		logrusLogEntry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger := loglogrus.NewLogrus(logrusLogEntry).WithValues(log.Kv{
		"version": Version,
	})

	logger.Debugf("Debug level is enabled")

	return logger
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
