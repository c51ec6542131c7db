package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	archive "github.com/onkernel/archiveguard/lib/archive"
)

var (
	listLong  bool
	listHuman bool
)

var listCmd = &cobra.Command{
	Use:     "list <archive>",
	Aliases: []string{"ls"},
	Short:   "List the entries of an archive without extracting it",
	Long: `List reads an archive's entry table without writing anything to disk.

Examples:
  archivectl list release.tar.gz
  archivectl list -lH release.zip`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVarP(&listLong, "long", "l", false, "Use long listing format")
	listCmd.Flags().BoolVarP(&listHuman, "human-readable", "H", false, "Print sizes in human-readable format")
}

func runList(_ *cobra.Command, args []string) error {
	cfg, err := securityConfigFromFlags()
	if err != nil {
		return err
	}

	manifest, err := archive.List(args[0], cfg)
	if err != nil {
		return err
	}

	if listLong {
		printLongListing(os.Stdout, manifest)
	} else {
		printShortListing(os.Stdout, manifest)
	}
	return nil
}

func printShortListing(w io.Writer, manifest *archive.ArchiveManifest) {
	for _, e := range manifest.Entries {
		fmt.Fprintln(w, e.Path)
	}
}

func printLongListing(w io.Writer, manifest *archive.ArchiveManifest) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range manifest.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Kind, formatSize(e.UncompressedSize), e.ModTime.Format("2006-01-02 15:04"), e.Path)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%s entries, %s uncompressed, %s compressed\n",
		strconv.Itoa(len(manifest.Entries)), formatSize(manifest.TotalUncompressed), formatSize(manifest.TotalCompressed))
}

func formatSize(size int64) string {
	if listHuman {
		return humanize.IBytes(uint64(size))
	}
	return strconv.FormatInt(size, 10)
}
