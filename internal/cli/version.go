package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print bucketd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bucketd %s (commit: %s, built: %s)\n", buildVersion, buildCommit, buildDate)
	},
}
