package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ucplan/app"
	"github.com/kilianp07/ucplan/config"
	"github.com/kilianp07/ucplan/core/model"
	"github.com/kilianp07/ucplan/core/schedule"
	"github.com/kilianp07/ucplan/infra/logger"
	"github.com/kilianp07/ucplan/pkg/export"
)

var (
	solveFormat string
	solveOut    string
)

var solveCmd = &cobra.Command{
	Use:   "solve <instance.yaml>",
	Short: "Solve one instance file and print the schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  solve,
}

func init() {
	solveCmd.Flags().StringVarP(&solveFormat, "format", "f", "text", "output format: text, json or csv")
	solveCmd.Flags().StringVarP(&solveOut, "out", "o", "", "output file (stdout when empty)")
	rootCmd.AddCommand(solveCmd)
}

func solve(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	in, err := config.LoadInstance(args[0])
	if err != nil {
		return err
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	done := svc.Start(ctx)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
		<-done
	}()

	run, err := svc.Planner.Plan(ctx, in)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if solveOut != "" {
		f, err := os.Create(solveOut)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return render(w, solveFormat, in, run.Outcome)
}

func render(w io.Writer, format string, in model.Instance, o schedule.Outcome) error {
	switch format {
	case "text":
		return export.WriteText(w, in, o)
	case "json":
		return export.WriteJSON(w, o)
	case "csv":
		if !o.Optimal() {
			return fmt.Errorf("%s: no schedule to export (%s)", in.Name, o.Status)
		}
		return export.WriteCSV(w, in, o.Schedule)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
