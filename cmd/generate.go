package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/ucplan/config"
	"github.com/kilianp07/ucplan/scenario"
)

var (
	genCount int
	genSeed  int64
	genOut   string
	genStart string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate synthetic instance files",
	RunE:  generate,
}

func init() {
	generateCmd.Flags().IntVarP(&genCount, "count", "n", 1, "number of instances")
	generateCmd.Flags().Int64Var(&genSeed, "seed", 0, "random seed (generator.seed when 0)")
	generateCmd.Flags().StringVarP(&genOut, "out", "o", "", "output directory (stdout when empty)")
	generateCmd.Flags().StringVar(&genStart, "start", "", "start of hour 1, RFC 3339 or YYYY-MM-DD (tomorrow when empty)")
	rootCmd.AddCommand(generateCmd)
}

func generate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	gcfg := cfg.Generator
	if genSeed != 0 {
		gcfg.Seed = genSeed
	}
	start := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	if genStart != "" {
		if start, err = config.ParseStart(genStart); err != nil {
			return err
		}
	}
	if genOut != "" {
		if err := os.MkdirAll(genOut, 0o755); err != nil {
			return err
		}
	}
	g := scenario.New(gcfg)
	for i := 0; i < genCount; i++ {
		in := g.Generate("", start)
		data, err := yaml.Marshal(config.FromInstance(in))
		if err != nil {
			return err
		}
		if genOut == "" {
			if i > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "---")
			}
			if _, err := cmd.OutOrStdout().Write(data); err != nil {
				return err
			}
			continue
		}
		path := filepath.Join(genOut, in.Name+".yaml")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
	}
	return nil
}
