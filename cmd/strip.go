// File: cmd/strip.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pngprotect/pngprotect-cli/api/schemas"
)

func newStripCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "strip <image>",
		Short: "Rewrite an image as a pixel-only PNG",
		Long: `Strip re-encodes the image from raw samples, dropping EXIF, ICC profiles,
text chunks and every other ancillary block. Pixel data, including any
embedded watermark, is preserved exactly.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			return runSingleTask(cmd, schemas.Task{
				Type:   schemas.TaskStrip,
				Input:  args[0],
				Output: output,
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output PNG path (required)")
	return cmd
}
