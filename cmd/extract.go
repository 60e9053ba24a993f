// File: cmd/extract.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pngprotect/pngprotect-cli/api/schemas"
)

func newExtractCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <image>",
		Short: "Recover an embedded ownership watermark",
		Long: `Extract scans every supported strength for an embedded payload and reports
the recovered owner. Damaged copies are reconstructed by majority vote where
possible; "corrupted" and "not_found" are reported as outcomes, not failures.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSingleTask(cmd, schemas.Task{
				Type:  schemas.TaskExtract,
				Input: args[0],
			})
		},
	}
}
