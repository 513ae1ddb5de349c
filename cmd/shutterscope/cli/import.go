package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/shutterscope/shutterscope/internal/models"
)

// maxImportLine bounds one JSON result line; network logs can be large.
const maxImportLine = 16 << 20

var (
	importDryRun      bool
	importStopOnError bool
	importRate        float64
	importBurst       int
)

var importCmd = &cobra.Command{
	Use:   "import FILE.jsonl",
	Short: "Import results from a JSON Lines file (admin only)",
	Long: `Read one JSON result per line and post each to the server.
Blank lines are skipped. Invalid or rejected lines are reported and counted
as failures; use --stop-on-error to abort at the first one.

Requests are paced to --rate per second (bursts of --burst) to stay under
the server's rate limit; rate limited requests are retried.

Examples:
  shutterscope import scan-2025-05-01.jsonl
  shutterscope import --dry-run scan.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate lines without sending them")
	importCmd.Flags().BoolVar(&importStopOnError, "stop-on-error", false, "Abort at the first failed line")
	importCmd.Flags().Float64Var(&importRate, "rate", 10, "Maximum requests per second (0 for no limit)")
	importCmd.Flags().IntVar(&importBurst, "burst", 20, "Requests allowed in a burst before pacing starts")
}

type importSummary struct {
	Imported int
	Failed   int
	Skipped  int
}

type createFunc func(ctx context.Context, r *models.Result) (int64, error)

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	create := createFunc(func(context.Context, *models.Result) (int64, error) { return 0, nil })
	if !importDryRun {
		c, err := newClient()
		if err != nil {
			return err
		}
		create = paced(c.CreateResult, newImportLimiter(importRate, importBurst))
	}

	fmt.Fprintf(os.Stderr, "Importing %s (%s)\n", path, humanize.Bytes(uint64(info.Size())))
	bar := pb.New64(info.Size()).
		SetTemplate(pb.Full).
		Set(pb.Bytes, true).
		SetWriter(os.Stderr).
		Start()
	reader := bar.NewProxyReader(f)

	sum, err := importResults(cmd.Context(), reader, create, os.Stderr, importStopOnError)
	bar.Finish()

	verb := "Imported"
	if importDryRun {
		verb = "Validated"
	}
	fmt.Fprintf(os.Stderr, "%s %s results, %s failed, %s blank lines skipped\n",
		verb, humanize.Comma(int64(sum.Imported)), humanize.Comma(int64(sum.Failed)), humanize.Comma(int64(sum.Skipped)))

	if err != nil {
		return err
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d results failed to import", sum.Failed)
	}
	return nil
}

// importResults decodes JSON Lines from r and passes each valid result to
// create. Per-line problems go to errOut and count as failures.
func importResults(ctx context.Context, r io.Reader, create createFunc, errOut io.Writer, stopOnError bool) (importSummary, error) {
	var sum importSummary
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxImportLine)

	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			sum.Skipped++
			continue
		}

		err := importLine(ctx, raw, create)
		if err == nil {
			sum.Imported++
			continue
		}
		sum.Failed++
		fmt.Fprintf(errOut, "line %d: %v\n", line, err)
		if stopOnError {
			return sum, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return sum, fmt.Errorf("line %d exceeds %s", line+1, humanize.IBytes(maxImportLine))
		}
		return sum, fmt.Errorf("reading input: %w", err)
	}
	return sum, nil
}

// newImportLimiter builds the request pacer. A non-positive rate disables
// pacing.
func newImportLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// paced waits for a token from lim before each call to create.
func paced(create createFunc, lim *rate.Limiter) createFunc {
	return func(ctx context.Context, r *models.Result) (int64, error) {
		if err := lim.Wait(ctx); err != nil {
			return 0, err
		}
		return create(ctx, r)
	}
}

func importLine(ctx context.Context, raw string, create createFunc) error {
	var result models.Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}
	result.ID = 0
	if err := result.Validate(); err != nil {
		return err
	}
	if _, err := create(ctx, &result); err != nil {
		return fmt.Errorf("%s: %w", result.URL, err)
	}
	return nil
}
