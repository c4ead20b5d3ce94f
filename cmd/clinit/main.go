// Command clinit runs the ClassInitCounter analysis over a loaded program
// and prints a summary of what it found.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/redopt/clinit/internal/clinitconfig"
	"github.com/redopt/clinit/internal/clinitlog"
	"github.com/redopt/clinit/pkg/clinit"
	"github.com/redopt/clinit/pkg/irmodel/irfake"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "clinit",
	Short: "Run the ClassInitCounter analysis over a loaded program",
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a program and print a summary table",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := runConfiguredAnalysis()
		if err != nil {
			return err
		}
		result.DebugShowTable(os.Stdout)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Analyze a program and print a per-construction detail dump",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := runConfiguredAnalysis()
		if err != nil {
			return err
		}
		result.DebugShowDetail(os.Stdout)
		return nil
	},
}

// runConfiguredAnalysis loads config, runs the analysis, and returns the
// result; analyze and show differ only in how they render it.
func runConfiguredAnalysis() (*clinit.Result, error) {
	cfg, err := clinitconfig.Load(configFile)
	if err != nil {
		return nil, err
	}
	log := clinitlog.New(cfg.LogLevel, cfg.LogFormat)
	entry := logrus.NewEntry(log)

	prog, hierarchy, root, ok := loadFixtureProgram(cfg.RootType)
	if !ok {
		return nil, fmt.Errorf("clinit: root type %q not found in loaded program", cfg.RootType)
	}

	restrict := make(map[string]struct{}, len(cfg.RestrictMethod))
	for _, m := range cfg.RestrictMethod {
		restrict[m] = struct{}{}
	}

	return clinit.RunProgram(context.Background(), prog, hierarchy, root, clinit.NewSafeEscapeSet(cfg.SafeEscapes), clinit.RunOptions{
		NumWorkers:      cfg.NumWorkers,
		RestrictMethods: restrict,
		Log:             entry,
	})
}

// loadFixtureProgram stands in for a real bytecode loader, which is out of
// scope here: it hands back an empty irfake program so the CLI's wiring
// is exercisable end to end without one.
func loadFixtureProgram(rootTypeName string) (prog *irfake.Program, hierarchy *irfake.Hierarchy, root *irfake.Type, ok bool) {
	root = irfake.NewType(rootTypeName)
	rootClass := irfake.NewClass(root, nil)
	prog = irfake.NewProgram(rootClass)
	hierarchy = irfake.NewHierarchy(prog)
	return prog, hierarchy, root, true
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", os.Getenv("CLINIT_CONFIG_FILE"), "path to a YAML config file")
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(showCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
