package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/shutterscope/shutterscope/internal/dashboard"
	"github.com/shutterscope/shutterscope/internal/models"
)

var (
	statsOutput      string
	statsChart       string
	statsChartWidth  int
	statsChartHeight int
	statsInteractive bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the statistics dashboard",
	Long: `Fetch the statistics snapshot once and show the summary cards
(database size, results, headers, network logs, console logs) and the
HTTP status code distribution.

Examples:
  shutterscope stats
  shutterscope stats --output yaml
  shutterscope stats --chart codes.png
  shutterscope stats --interactive`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVarP(&statsOutput, "output", "o", "text", "Output format: text, json or yaml")
	statsCmd.Flags().StringVar(&statsChart, "chart", "", "Also write the status code chart as a PNG file")
	statsCmd.Flags().IntVar(&statsChartWidth, "chart-width", 800, "PNG chart width in pixels")
	statsCmd.Flags().IntVar(&statsChartHeight, "chart-height", 400, "PNG chart height in pixels")
	statsCmd.Flags().BoolVarP(&statsInteractive, "interactive", "i", false, "Open the interactive terminal dashboard")
}

func runStats(cmd *cobra.Command, args []string) error {
	switch statsOutput {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", statsOutput)
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	if statsInteractive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("--interactive needs a terminal")
		}
		return dashboard.RunTUI(cmd.Context(), c)
	}

	view := dashboard.NewView()
	loadErr := view.Load(cmd.Context(), c)

	if err := writeStats(cmd.OutOrStdout(), statsOutput, view); err != nil {
		return err
	}
	if loadErr != nil {
		return fmt.Errorf("failed to get statistics: %w", loadErr)
	}

	if statsChart != "" {
		return saveChart(os.Stderr, statsChart, view.State().Snapshot, statsChartWidth, statsChartHeight)
	}
	return nil
}

// saveChart writes the PNG chart. An empty distribution is not an error;
// it is reported on errOut and no file is written.
func saveChart(errOut io.Writer, path string, s *models.Statistics, width, height int) error {
	err := writeChart(path, s, width, height)
	switch {
	case errors.Is(err, dashboard.ErrNoChartData):
		fmt.Fprintln(errOut, "No results yet, no chart written")
		return nil
	case err != nil:
		return err
	}
	fmt.Fprintf(errOut, "✓ Chart written to %s\n", path)
	return nil
}

// writeStats prints the view in the requested format. Structured formats
// print nothing when the load failed; the text format prints the notice
// and zero values.
func writeStats(w io.Writer, format string, view *dashboard.View) error {
	st := view.State()
	switch format {
	case "json":
		if st.Snapshot == nil {
			return nil
		}
		out, err := json.MarshalIndent(st.Snapshot, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	case "yaml":
		if st.Snapshot == nil {
			return nil
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(st.Snapshot); err != nil {
			return err
		}
		return enc.Close()
	default:
		return dashboard.RenderText(w, view)
	}
}

func writeChart(path string, s *models.Statistics, width, height int) error {
	if len(dashboard.BarsFor(s)) == 0 {
		return dashboard.ErrNoChartData
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chart file: %w", err)
	}
	if err := dashboard.RenderChartPNG(f, s, width, height); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
