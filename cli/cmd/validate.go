package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/initializ/foundry/cli/config"
	"github.com/initializ/foundry/core/builderr"
	coreconfig "github.com/initializ/foundry/core/config"
)

var strict bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate foundry.yaml",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as errors")
}

func runValidate(cmd *cobra.Command, _ []string) error {
	dir, err := projectDir()
	if err != nil {
		return err
	}
	project, err := config.Load(cfgFile, dir)
	if err != nil {
		return err
	}
	if project.Path == "" {
		fmt.Fprintln(stdout(cmd), "No foundry.yaml found; defaults apply.") //nolint:errcheck
		return nil
	}

	data, err := project.ReadFile()
	if err != nil {
		return err
	}
	result, err := coreconfig.Validate(data)
	if err != nil {
		return builderr.InvalidConfig("%s: %v", project.Path, err)
	}

	errw := stderr(cmd)
	for _, w := range result.Warnings {
		fmt.Fprintf(errw, "WARNING: %s\n", w) //nolint:errcheck
	}
	for _, e := range result.Errors {
		fmt.Fprintf(errw, "ERROR: %s\n", e) //nolint:errcheck
	}

	if strict && len(result.Warnings) > 0 {
		return builderr.InvalidConfig("validation failed: %d warning(s) treated as errors in strict mode", len(result.Warnings))
	}
	if !result.IsValid() {
		return builderr.InvalidConfig("validation failed: %d error(s)", len(result.Errors))
	}

	fmt.Fprintln(stdout(cmd), "Validation passed.") //nolint:errcheck
	return nil
}
