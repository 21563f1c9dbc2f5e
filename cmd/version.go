package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/secinto/httpobservatory/internal/shared/constants"
)

// Version information (injected at build time via -ldflags)
// These default values indicate a development build
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Display detailed version information for httpobservatory",
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")

		if verbose {
			fmt.Printf(`httpobservatory Version Information:
  Version:          %s
  Git Commit:       %s
  Build Date:       %s
  Grading Algorithm: v%d
  Go Version:       %s
  OS/Arch:          %s/%s
  Compiler:         %s
`, Version, GitCommit, BuildDate, constants.CurrentAlgorithmVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH, runtime.Compiler)
		} else {
			fmt.Printf("httpobservatory version %s\n", Version)
		}
	},
}

func init() {
	versionCmd.Flags().BoolP("verbose", "v", false, "Show detailed version information")
}
