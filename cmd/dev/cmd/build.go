package cmd

import (
	"fmt"
	"runtime"
	"strconv"

	"github.com/gophertribe/devtool/build"
	"github.com/spf13/cobra"
)

// BuildCmd builds the tof cli natively, or inside the cross-compilation image
// when another platform is requested. karalabe/hid needs cgo, so foreign
// targets are cross-compiled inside the image.
func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the tof cli",
		RunE: func(cmd *cobra.Command, args []string) error {
			goos := cmd.Flag("os").Value.String()
			arch := cmd.Flag("arch").Value.String()
			version := cmd.Flag("version").Value.String()
			crossOS := cmd.Flag("cross-os").Value.String()
			crossArch := cmd.Flag("cross-arch").Value.String()
			targets, err := cmd.Flags().GetInt("targets")
			if err != nil {
				return fmt.Errorf("could not get targets flag: %w", err)
			}
			tags, err := targetTags(targets)
			if err != nil {
				return err
			}
			out := "dist/tof"
			if targets > 1 {
				out = fmt.Sprintf("dist/tof-t%d", targets)
			}

			if goos == runtime.GOOS && arch == runtime.GOARCH {
				if crossOS != "" && crossArch != "" {
					goos, arch = crossOS, crossArch
				}
				return build.GoBuild(out, "./cmd/tof", build.GoBuildOpts{
					Version:       version,
					InjectVersion: true,
					ConfigPackage: "main",
					EnableCgo:     true,
					Tags:          tags,
					Arch:          arch,
					OS:            goos,
				})
			}

			noCache, err := cmd.Flags().GetBool("no-cache")
			if err != nil {
				return fmt.Errorf("could not get no-cache flag: %w", err)
			}
			inner := []string{"build", "--version", version, "--targets", strconv.Itoa(targets), "--cross-os", goos, "--cross-arch", arch}
			return build.Docker(cmd.Context(), fmt.Sprintf("./dev-%s-%s", goos, arch), inner, build.DockerBuildOpts{
				NoCache: noCache,
				Image:   "gophertribe/gobuild:1.25-bookworm",
			})
		},
	}
	cmd.Flags().Bool("no-cache", false, "do not use cache when building in docker")
	cmd.Flags().String("version", "latest", "version of the cli")
	cmd.Flags().String("os", runtime.GOOS, "os to build for")
	cmd.Flags().String("arch", runtime.GOARCH, "arch to build for, arm64 for NanoPi boards")
	cmd.Flags().String("cross-os", "", "os to cross-compile for inside the build image")
	cmd.Flags().String("cross-arch", "", "arch to cross-compile for inside the build image")
	cmd.Flags().Int("targets", 1, "targets per zone the results layout is built with (1..4)")
	return cmd
}
