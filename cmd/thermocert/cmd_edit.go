package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thermocert/thermocert/internal/compute"
	"github.com/thermocert/thermocert/internal/edit"
)

type editFlags struct {
	in     string
	out    string
	index  int
	sensor string
	value  float64
	clear  bool
}

func newEditCmd(root *rootFlags) *cobra.Command {
	var flags editFlags
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Correct one sensor value of a saved result and recompute it",
		Long: "Reads a result written by 'thermocert process --out', applies one\n" +
			"correction, recomputes the statistics and verdict, and writes it back.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEdit(cmd, root, &flags)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.in, "in", "", "result JSON file (required)")
	f.StringVar(&flags.out, "out", "", "output file (defaults to --in)")
	f.IntVar(&flags.index, "index", -1, "0-based reading index (required)")
	f.StringVar(&flags.sensor, "sensor", "", "sensor id, e.g. sensor3 (required)")
	f.Float64Var(&flags.value, "value", 0, "corrected temperature")
	f.BoolVar(&flags.clear, "clear", false, "mark the value as missing instead")

	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("index")
	_ = cmd.MarkFlagRequired("sensor")
	cmd.MarkFlagsMutuallyExclusive("value", "clear")
	cmd.MarkFlagsOneRequired("value", "clear")
	return cmd
}

func runEdit(cmd *cobra.Command, root *rootFlags, flags *editFlags) error {
	cfg, err := loadConfig(root.configPath)
	if err != nil {
		return err
	}
	prev, err := readResult(flags.in)
	if err != nil {
		return err
	}

	e := edit.Edit{Index: flags.index, Sensor: flags.sensor}
	if !flags.clear {
		v := flags.value
		e.Value = &v
	}
	next, err := edit.Apply(prev, e, compute.NewEngine(cfg.Limits))
	if err != nil {
		if errors.Is(err, edit.ErrUnknownSensor) {
			return fmt.Errorf("%w (result has %v)", err, prev.Sensors)
		}
		return err
	}

	out := flags.out
	if out == "" {
		out = flags.in
	}
	if err := writeResult(out, next); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s (%s)\n",
		next.Name, prev.Summary.Status, next.Summary.Status, next.Caveats[len(next.Caveats)-1].Reason)
	return nil
}
