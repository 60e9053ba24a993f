// File: cmd/protect.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pngprotect/pngprotect-cli/api/schemas"
)

func newProtectCommand() *cobra.Command {
	var (
		level  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "protect <image>",
		Short: "Apply an adversarial shield against automated feature extraction",
		Long: `Protect perturbs the image within a tight intensity budget so automated
feature extractors lose confidence while the image stays visually intact. The
perturbation leaves the lowest bit planes alone, so a previously embedded
watermark survives protection.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			if !cmd.Flags().Changed("level") {
				level = viper.GetInt("shield.default_level")
			}
			return runSingleTask(cmd, schemas.Task{
				Type:   schemas.TaskProtect,
				Input:  args[0],
				Output: output,
				Level:  level,
			})
		},
	}

	cmd.Flags().IntVar(&level, "level", 0, "protection level 0-100 (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output PNG path (required)")
	return cmd
}
