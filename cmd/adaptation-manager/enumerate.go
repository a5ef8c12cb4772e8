package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/snow-ghost/adaptmgr/configspace"
	"github.com/snow-ghost/adaptmgr/core"
)

// knobCatalogue is the YAML layout read by enumerate, matching the knobs endpoint body
type knobCatalogue struct {
	VariableParameters []core.Knob `yaml:"variable_parameters"`
}

func newEnumerateCmd() *cobra.Command {
	var (
		knobsPath string
		countOnly bool
	)

	cmd := &cobra.Command{
		Use:   "enumerate",
		Short: "Print the configuration space of a knob catalogue as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if knobsPath == "" {
				return errors.New("--knobs is required")
			}
			data, err := os.ReadFile(knobsPath)
			if err != nil {
				return fmt.Errorf("failed to read knob catalogue: %w", err)
			}
			var cat knobCatalogue
			if err := yaml.Unmarshal(data, &cat); err != nil {
				return fmt.Errorf("failed to parse knob catalogue: %w", err)
			}

			out := cmd.OutOrStdout()
			if countOnly {
				_, err := fmt.Fprintln(out, configspace.Size(cat.VariableParameters))
				return err
			}

			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"system_possible_configurations": configspace.Build(cat.VariableParameters),
			})
		},
	}
	cmd.Flags().StringVar(&knobsPath, "knobs", "", "YAML file with a variable_parameters list")
	cmd.Flags().BoolVar(&countOnly, "count", false, "Only print the number of configurations")
	return cmd
}
