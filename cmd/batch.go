// File: cmd/batch.go
package cmd

import (
	"bufio"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/pngprotect/pngprotect-cli/api/schemas"
	"github.com/pngprotect/pngprotect-cli/internal/engine"
	"github.com/pngprotect/pngprotect-cli/internal/observability"
	"github.com/pngprotect/pngprotect-cli/internal/reporting"
)

func newBatchCommand() *cobra.Command {
	var (
		workers int
		output  string
	)

	cmd := &cobra.Command{
		Use:   "batch <tasks.jsonl>",
		Short: "Run a batch of tasks from a JSON-lines file",
		Long: `Batch reads one task per line from the given file and processes them across
a bounded worker pool. Each line is a JSON task object, e.g.:

  {"type":"embed","input":"a.png","output":"a.wm.png","owner_id":"artist-1","strength":5}
  {"type":"analyze","input":"b.png","owner_id":"artist-1"}

Results stream out as JSON lines in completion order. Individual task failures
are reported in their result lines; the batch keeps going.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if workers > 0 {
				cfg.Engine.WorkerConcurrency = workers
			}

			tasks, err := readTasks(args[0])
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				return fmt.Errorf("no tasks in %s", args[0])
			}

			out := os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer f.Close()
				out = f
			}

			eng := engine.New(cfg, observability.GetLogger(), reporting.NewJSONLines(out))
			return eng.Run(cmd.Context(), tasks)
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "worker concurrency (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write results to file instead of stdout")
	return cmd
}

func readTasks(path string) ([]schemas.Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var (
		tasks   []schemas.Task
		scanner = bufio.NewScanner(f)
		json    = jsoniter.ConfigCompatibleWithStandardLibrary
		lineNo  int
	)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var task schemas.Task
		if err := json.Unmarshal(line, &task); err != nil {
			return nil, fmt.Errorf("%s:%d: invalid task: %w", path, lineNo, err)
		}
		tasks = append(tasks, task)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return tasks, nil
}
