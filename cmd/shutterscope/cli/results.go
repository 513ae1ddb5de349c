package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/shutterscope/shutterscope/internal/models"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Browse and manage probe results",
	Long: `Browse and manage probe results stored on the server.

Examples:
  shutterscope results list --limit 20
  shutterscope results get 42
  shutterscope results delete 42`,
}

var (
	resultsLimit  int
	resultsOffset int
	resultsJSON   bool
)

var resultsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List results, newest first",
	Args:  cobra.NoArgs,
	RunE:  runResultsList,
}

var resultsGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one result with its headers and logs",
	Args:  cobra.ExactArgs(1),
	RunE:  runResultsGet,
}

var resultsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a result (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE:  runResultsDelete,
}

func init() {
	resultsListCmd.Flags().IntVar(&resultsLimit, "limit", 50, "Maximum number of results")
	resultsListCmd.Flags().IntVar(&resultsOffset, "offset", 0, "Number of results to skip")
	resultsGetCmd.Flags().BoolVar(&resultsJSON, "json", false, "Print the raw JSON result")

	resultsCmd.AddCommand(resultsListCmd)
	resultsCmd.AddCommand(resultsGetCmd)
	resultsCmd.AddCommand(resultsDeleteCmd)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid result id %q", arg)
	}
	return id, nil
}

func runResultsList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	results, err := c.ListResults(cmd.Context(), resultsLimit, resultsOffset)
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}
	if len(results) == 0 {
		fmt.Fprintln(os.Stderr, "No results found")
		return nil
	}

	printResultTable(cmd.OutOrStdout(), results)
	return nil
}

func printResultTable(out io.Writer, results []models.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCODE\tPROBED\tSIZE\tURL\tTITLE")
	for _, r := range results {
		code := strconv.Itoa(r.ResponseCode)
		if r.Failed {
			code = "fail"
		}
		probed := "-"
		if !r.ProbedAt.IsZero() {
			probed = humanize.Time(r.ProbedAt)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, code, probed, humanize.Bytes(uint64(max(r.ContentLength, 0))), r.URL, truncate(r.Title, 40))
	}
	w.Flush()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func runResultsGet(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}

	r, err := c.GetResult(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("failed to get result %d: %w", id, err)
	}

	if resultsJSON {
		out, _ := json.MarshalIndent(r, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}
	printResult(cmd.OutOrStdout(), r)
	return nil
}

func printResult(out io.Writer, r *models.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%d\n", r.ID)
	fmt.Fprintf(w, "URL:\t%s\n", r.URL)
	if r.FinalURL != "" && r.FinalURL != r.URL {
		fmt.Fprintf(w, "Final URL:\t%s\n", r.FinalURL)
	}
	fmt.Fprintf(w, "Probed:\t%s\n", r.ProbedAt.Format("2006-01-02 15:04:05 MST"))
	if r.Failed {
		fmt.Fprintf(w, "Failed:\t%s\n", r.FailedReason)
	} else {
		fmt.Fprintf(w, "Response:\t%d %s (%s)\n", r.ResponseCode, r.ResponseReason, r.Protocol)
	}
	fmt.Fprintf(w, "Title:\t%s\n", r.Title)
	fmt.Fprintf(w, "Content length:\t%s\n", humanize.Bytes(uint64(max(r.ContentLength, 0))))
	if r.Filename != "" {
		fmt.Fprintf(w, "Screenshot:\t%s\n", r.Filename)
	}
	w.Flush()

	if len(r.Headers) > 0 {
		fmt.Fprintf(out, "\nHeaders (%d):\n", len(r.Headers))
		for _, h := range r.Headers {
			fmt.Fprintf(out, "  %s: %s\n", h.Key, h.Value)
		}
	}
	if len(r.Network) > 0 {
		fmt.Fprintf(out, "\nNetwork (%d):\n", len(r.Network))
		for _, n := range r.Network {
			fmt.Fprintf(out, "  %3d %-10s %s\n", n.StatusCode, n.RequestType, n.URL)
		}
	}
	if len(r.Console) > 0 {
		fmt.Fprintf(out, "\nConsole (%d):\n", len(r.Console))
		for _, c := range r.Console {
			fmt.Fprintf(out, "  [%s] %s\n", c.Type, c.Value)
		}
	}
}

func runResultsDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}

	if err := c.DeleteResult(cmd.Context(), id); err != nil {
		return fmt.Errorf("failed to delete result %d: %w", id, err)
	}
	fmt.Fprintf(os.Stderr, "✓ Result %d deleted\n", id)
	return nil
}
