// File: cmd/tasks.go
package cmd

import (
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pngprotect/pngprotect-cli/api/schemas"
	"github.com/pngprotect/pngprotect-cli/internal/engine"
	"github.com/pngprotect/pngprotect-cli/internal/observability"
	"github.com/pngprotect/pngprotect-cli/internal/reporting"
)

// runSingleTask executes one task through the engine and prints its result to
// stdout. The command fails when the task does.
func runSingleTask(cmd *cobra.Command, task schemas.Task) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	task.JobID = uuid.NewString()
	task.TaskID = uuid.NewString()
	task.CreatedAt = time.Now().UTC()

	reporter := reporting.NewPrettyJSON(os.Stdout)
	eng := engine.New(cfg, observability.GetLogger(), reporter)

	env := eng.Execute(cmd.Context(), &task)
	if err := reporter.Report(env); err != nil {
		return err
	}
	if env.Error != "" {
		return errors.New(env.Error)
	}
	return nil
}
