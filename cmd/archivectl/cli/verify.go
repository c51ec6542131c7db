package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	archive "github.com/onkernel/archiveguard/lib/archive"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <archive>",
	Short: "Scan an archive for security issues without extracting it",
	Long: `Verify runs the same validation every entry would go through during
extraction, but never writes to disk. It reports every issue found,
classified by severity, and exits non-zero if anything at High severity
or above was found.

Examples:
  archivectl verify untrusted.tar.gz
  archivectl verify --allow-symlinks release.zip`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func runVerify(_ *cobra.Command, args []string) error {
	cfg, err := securityConfigFromFlags()
	if err != nil {
		return err
	}

	report, err := archive.Verify(args[0], cfg)
	if err != nil {
		return err
	}

	for _, issue := range report.Issues {
		fmt.Printf("[%s] %s: %s", issue.Severity, issue.Category, issue.Message)
		if issue.Path != "" {
			fmt.Printf(" (path=%q)", issue.Path)
		}
		fmt.Println()
	}

	fmt.Printf("\n%d entries, %d issues, safe=%t\n", report.EntryCount, len(report.Issues), report.IsSafe())

	if !report.IsSafe() {
		os.Exit(1)
	}
	return nil
}
