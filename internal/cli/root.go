package cli

import (
	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// SetVersion is called from main to inject build-time version info.
func SetVersion(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
}

var rootCmd = &cobra.Command{
	Use:   "bucketd",
	Short: "bucketd — file upload server with local and S3-backed buckets",
	Long: `bucketd serves named upload buckets over HTTP. Files land on the local
filesystem or in an S3-compatible object store, with sanitized names,
per-bucket extension policies, and signed download URLs. Single binary.
One config file.

Get started (local storage, zero config):
  bucketd start

Or with an object store behind it:
  BUCKETD_S3_ENDPOINT=minio.local:9000 bucketd start`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
