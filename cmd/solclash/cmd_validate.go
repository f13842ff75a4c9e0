package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"solclash/internal/fault"
	"solclash/internal/tape"
)

func newValidateCmd() *cobra.Command {
	var (
		barsPath   string
		intervalMS int64
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a bar tape and report every schema violation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd.OutOrStdout(), barsPath, intervalMS)
		},
	}
	cmd.Flags().StringVar(&barsPath, "bars", "", "bar tape file (JSON or JSONL)")
	cmd.Flags().Int64Var(&intervalMS, "interval-ms", 0, "expected bar interval, derived from the first bar when 0")
	_ = cmd.MarkFlagRequired("bars")
	return cmd
}

func runValidate(w io.Writer, barsPath string, intervalMS int64) error {
	tp, err := tape.Load(barsPath)
	if err != nil {
		return err
	}
	if intervalMS <= 0 && len(tp.Bars) > 0 {
		intervalMS = tp.Bars[0].EndTSMS - tp.Bars[0].StartTSMS
	}

	verrs := tape.Validate(tp.Bars, intervalMS)
	for _, ve := range verrs {
		fmt.Fprintln(w, ve.Error())
	}
	if len(verrs) > 0 {
		return fault.New(fault.TapeSchemaInvalid, "%d validation errors in %d bars", len(verrs), len(tp.Bars))
	}
	fmt.Fprintf(w, "ok: %d bars, interval %dms\n", len(tp.Bars), intervalMS)
	return nil
}
