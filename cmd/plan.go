package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/ucplan/app"
	"github.com/kilianp07/ucplan/config"
	"github.com/kilianp07/ucplan/core/model"
	"github.com/kilianp07/ucplan/infra/logger"
	"github.com/kilianp07/ucplan/pkg/export"
)

var planWorkers int

var planCmd = &cobra.Command{
	Use:   "plan <instance>...",
	Short: "Solve several instance files in parallel and print a summary",
	Args:  cobra.MinimumNArgs(1),
	RunE:  plan,
}

func init() {
	planCmd.Flags().IntVarP(&planWorkers, "workers", "w", 0, "parallel solves (planner.workers when 0)")
	rootCmd.AddCommand(planCmd)
}

func loadInstances(paths []string) ([]model.Instance, error) {
	ins := make([]model.Instance, len(paths))
	var g errgroup.Group
	for i, p := range paths {
		g.Go(func() error {
			in, err := config.LoadInstance(p)
			if err != nil {
				return err
			}
			if in.Name == "" {
				in.Name = p
			}
			ins[i] = in
			return nil
		})
	}
	return ins, g.Wait()
}

func plan(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ins, err := loadInstances(args)
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

	workers := planWorkers
	if workers <= 0 {
		workers = cfg.Planner.Workers
	}
	runs, err := svc.Planner.PlanAll(ctx, ins, workers)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "instance\tstatus\tcost\tnodes\tduration\trun")
	for _, r := range runs {
		cost, nodes := "-", 0
		if s := r.Outcome.Schedule; s != nil {
			cost = export.Format(s.TotalCost, export.Places)
		}
		if d := r.Outcome.Diagnostic; d != nil {
			nodes = d.Nodes
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", r.Instance.Name, r.Outcome.Status, cost, nodes, r.Duration.Round(time.Millisecond), r.ID)
	}
	return tw.Flush()
}
