// File: cmd/analyze.go
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pngprotect/pngprotect-cli/api/schemas"
)

func newAnalyzeCommand() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Run forensic tamper analysis on an image",
		Long: `Analyze inspects the image for evidence of post-watermarking modification:
disturbed LSB planes, recompression artifacts, and a missing or damaged
watermark. With --owner it also verifies the recovered payload against the
claimed owner.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				owner = viper.GetString("forensics.claimed_owner")
			}
			return runSingleTask(cmd, schemas.Task{
				Type:    schemas.TaskAnalyze,
				Input:   args[0],
				OwnerID: owner,
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "claimed owner id to verify against")
	return cmd
}
