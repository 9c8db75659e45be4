package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/thermocert/thermocert/internal/compute"
	"github.com/thermocert/thermocert/internal/ingest"
	"github.com/thermocert/thermocert/internal/normalize"
	"github.com/thermocert/thermocert/pkg/types"
)

type processFlags struct {
	category string
	asJSON   bool
	outDir   string
}

func newProcessCmd(root *rootFlags) *cobra.Command {
	var flags processFlags
	cmd := &cobra.Command{
		Use:   "process FILE...",
		Short: "Compute compliance results for one or more logger exports",
		Long: "Each file is processed independently. A file that cannot be read does\n" +
			"not stop the others; the command exits non-zero if any file failed.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, root, &flags, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.category, "category", "", "uniformity|sterilization (overrides engine.category)")
	f.BoolVar(&flags.asJSON, "json", false, "print results as a JSON array")
	f.StringVarP(&flags.outDir, "out", "o", "", "write each result to DIR/<id>.json")
	return cmd
}

func runProcess(cmd *cobra.Command, root *rootFlags, flags *processFlags, paths []string) error {
	cfg, err := loadConfig(root.configPath)
	if err != nil {
		return err
	}
	cat, err := cfg.Engine.TestCategory()
	if err != nil {
		return err
	}
	if flags.category != "" {
		if cat, err = types.ParseCategory(flags.category); err != nil {
			return fmt.Errorf("--category: %w", err)
		}
	}
	norm, err := normalize.New(cfg.Engine)
	if err != nil {
		return err
	}
	pipe := ingest.New(norm, compute.NewEngine(cfg.Limits), cat, ingest.WithWorkers(cfg.Engine.Workers))

	files := make([]ingest.File, 0, len(paths))
	var failed int
	errOut := cmd.ErrOrStderr()
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", p, err)
			failed++
			continue
		}
		files = append(files, ingest.File{Name: p, Data: data})
	}

	outcomes := pipe.Batch(cmd.Context(), files)
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", o.File, o.Err)
			failed++
		}
	}
	results := ingest.Results(outcomes)

	out := cmd.OutOrStdout()
	switch {
	case flags.outDir != "":
		if err := writeResults(flags.outDir, results); err != nil {
			return err
		}
		printTable(out, results)
	case flags.asJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return fmt.Errorf("encode results: %w", err)
		}
	default:
		printTable(out, results)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return nil
}

func writeResults(dir string, results []*types.TestResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, res := range results {
		if err := writeResult(filepath.Join(dir, res.ID+".json"), res); err != nil {
			return err
		}
	}
	return nil
}

func readResult(path string) (*types.TestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read result: %w", err)
	}
	var res types.TestResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parse result %s: %w", path, err)
	}
	return &res, nil
}

func writeResult(path string, res *types.TestResult) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

func printTable(w io.Writer, results []*types.TestResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTEST\tCATEGORY\tREADINGS\tSTABILITY\tUNIFORMITY\tMIN F0\tSKIPPED\tCOERCED\tSTATUS")
	for _, res := range results {
		s := &res.Summary
		stab := "-"
		if v, ok := s.MaxStability(); ok {
			stab = fmt.Sprintf("%.2f", v)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%d\t%d\t%s\n",
			res.ID, res.Name, res.Category, len(res.Readings),
			stab, fmtPtr(s.Uniformity), fmtPtr(s.MinLethality),
			res.SkippedRows(), res.CoercedValues(), s.Status)
	}
	tw.Flush()
}

func fmtPtr(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
