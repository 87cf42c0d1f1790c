package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var patternsTest string

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List the phrase patterns that skip the provider",
	Long: `List the effective pattern table: the built-in phrases plus those from
ingest.patterns_file, in lookup order. Only patterns above the threshold
answer without a provider call.

Use --test to see which pattern, if any, a text would hit.`,
	Args: cobra.NoArgs,
	RunE: runPatterns,
}

func init() {
	patternsCmd.Flags().StringVar(&patternsTest, "test", "", "text to look up")
}

func runPatterns(cmd *cobra.Command, args []string) error {
	cache, err := patternCache()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if patternsTest != "" {
		r, ok := cache.Lookup(patternsTest)
		if !ok {
			fmt.Fprintln(out, "No pattern matches; the provider would be called")
			return nil
		}
		fmt.Fprintf(out, "%s (%.2f) from %s\n", r.Label, r.Confidence, r.Source)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PHRASE\tLABEL\tCONFIDENCE\tACTIVE")
	for _, p := range cache.Patterns() {
		active := "no"
		if p.Confidence > cache.Threshold() {
			active = "yes"
		}
		fmt.Fprintf(w, "%q\t%s\t%.2f\t%s\n", p.Phrase, p.Label, p.Confidence, active)
	}
	return w.Flush()
}
