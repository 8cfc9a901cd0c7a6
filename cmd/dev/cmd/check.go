package cmd

import (
	"fmt"
	"log/slog"

	"github.com/gophertribe/devtool/test"
	"github.com/magefile/mage/sh"
	"github.com/spf13/cobra"
)

// TestCmd runs the suite once with gotestsum, then again for every other
// results layout so the tagged variants keep compiling and passing.
func TestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run tests for every targets-per-zone layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			counts, err := parseTargetCounts(cmd.Flag("targets").Value.String())
			if err != nil {
				return err
			}
			for _, n := range counts {
				tags, _ := targetTags(n)
				if len(tags) == 0 {
					err = test.Test()
				} else {
					slog.Info("running tests", "targets", n, "tags", tags)
					err = sh.RunV("go", "test", "-tags", tags[0], "./...")
				}
				if err != nil {
					return fmt.Errorf("tests failed for %d targets per zone: %w", n, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().String("targets", "1,2,3,4", "comma separated targets-per-zone layouts to test")
	return cmd
}

func LintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Run linting",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Lint()
			if err != nil {
				return fmt.Errorf("failed to run linting: %w", err)
			}
			return nil
		},
	}
}

// SimCmd runs the cli against the emulated sensor.
func SimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Read frames from the emulated sensor through the whole stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := cmd.Flags().GetInt("targets")
			if err != nil {
				return fmt.Errorf("could not get targets flag: %w", err)
			}
			tags, err := targetTags(n)
			if err != nil {
				return err
			}
			run := []string{"run"}
			if len(tags) > 0 {
				run = append(run, "-tags", tags[0])
			}
			run = append(run, "./cmd/tof", "--adapter", "sim", "read", "--frames", cmd.Flag("frames").Value.String(), "--format", "yaml")
			return sh.RunV("go", run...)
		},
	}
	cmd.Flags().Int("targets", 1, "targets per zone the layout is built with")
	cmd.Flags().Int("frames", 3, "frames to read")
	return cmd
}
