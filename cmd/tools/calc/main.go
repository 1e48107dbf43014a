package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-komisi/internal/commission"
	"github.com/noah-isme/backend-komisi/internal/ledger"
	"github.com/noah-isme/backend-komisi/internal/obs"
	"github.com/noah-isme/backend-komisi/internal/reports"
	"github.com/noah-isme/backend-komisi/internal/spreadsheet"
)

// calc computes a commission report from a local ledger file and writes the
// workbook next to it. Exit code 0 = ok, 1 = rejected ledger, 2 = other error.
func main() {
	logger := obs.NewLogger(os.Getenv("OBS_LOG_FORMAT"), os.Getenv("OBS_LOG_LEVEL")).With().Str("component", "calc").Logger()
	if err := run(context.Background(), os.Args[1:], os.Stdout, logger); err != nil {
		var verr *commission.ValidationError
		switch {
		case errors.Is(err, flag.ErrHelp):
			os.Exit(0)
		case errors.As(err, &verr):
			for _, p := range verr.Problems {
				fmt.Fprintln(os.Stderr, p.String())
			}
			os.Exit(1)
		case errors.Is(err, ledger.ErrUnsupportedFormat), errors.Is(err, ledger.ErrMalformed):
			fmt.Fprintf(os.Stderr, "calc: %v\n", err)
			os.Exit(1)
		default:
			fmt.Fprintf(os.Stderr, "calc error: %v\n", err)
			os.Exit(2)
		}
	}
}

func run(ctx context.Context, args []string, stdout io.Writer, logger zerolog.Logger) error {
	fs := flag.NewFlagSet("calc", flag.ContinueOnError)
	var (
		in       = fs.String("in", "", "ledger file (.txt, .csv, .xlsx)")
		name     = fs.String("name", "", "output file name without extension")
		dir      = fs.String("dir", "", "output directory; defaults to the ledger's directory")
		mode     = fs.String("mode", "global", "cumulative mode: global or per_group")
		rounding = fs.String("rounding", "half_even", "rounding: half_even or half_up")
		labels   = fs.String("labels", "zh", "report labels: zh or en")
		sheet    = fs.String("sheet", "", "workbook sheet to read; defaults to the first")
		preview  = fs.Bool("json", false, "print the report as JSON instead of writing a workbook")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("-in is required")
	}

	cumulative, err := commission.ParseCumulativeMode(*mode)
	if err != nil {
		return err
	}
	round, err := commission.ParseRounding(*rounding)
	if err != nil {
		return err
	}
	labelSet, err := spreadsheet.LabelsFor(*labels)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(*in)
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	outDir := *dir
	if outDir == "" {
		outDir = filepath.Dir(*in)
	}

	service := reports.NewService(reports.ServiceConfig{
		Loader:    ledger.Loader{Sheet: *sheet},
		Labels:    labelSet,
		Options:   commission.Options{CumulativeMode: cumulative, Rounding: round},
		OutputDir: outDir,
		Logger:    logger,
	})
	up := reports.Upload{FileName: filepath.Base(*in), OutputName: *name, Content: content}

	if *preview {
		report, err := service.Preview(ctx, up)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	artifact, err := service.Generate(ctx, up, obs.SourceCLI)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: %d rows, %d tiers, commission %d\n", artifact.Path, artifact.Rows, artifact.Tiers, artifact.TotalCommission)
	return nil
}
