// File: cmd/score.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pngprotect/pngprotect-cli/api/schemas"
)

func newScoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "score <image>",
		Short: "Estimate how resistant an image is to feature extraction",
		Long: `Score runs the feature extractor against the image as-is and reports a
0-100 robustness estimate. Unprotected images score low; shielded images score
higher.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSingleTask(cmd, schemas.Task{
				Type:  schemas.TaskScore,
				Input: args[0],
			})
		},
	}
}
