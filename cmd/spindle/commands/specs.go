package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skeinworks/spindle/errors"
	"github.com/skeinworks/spindle/spec"
)

// SpecsCmd manages specifications.
var SpecsCmd = &cobra.Command{
	Use:   "specs",
	Short: "Manage specifications (parameter bundles)",
	Long: `Manage specifications, the named parameter bundles jobs reference.

Editing a specification changes what its jobs do on their next firing;
the jobs themselves are untouched.

Examples:
  spindle specs ls
  spindle specs add --name "news sources" --params '{"urls":["https://example.com/news"]}'
  spindle specs show <spec-id>
  spindle specs rm <spec-id>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var specsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List specifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRuntime()
		if err != nil {
			return err
		}
		defer r.Close()

		specs, err := r.specs.List()
		if err != nil {
			return err
		}
		if len(specs) == 0 {
			fmt.Println("No specifications")
			return nil
		}

		fmt.Printf("%-36s  %-28s  %s\n", "ID", "NAME", "UPDATED")
		for _, sp := range specs {
			fmt.Printf("%-36s  %-28s  %s\n",
				sp.ID, truncate(sp.Name, 28), sp.UpdatedAt.UTC().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var specsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a specification",
	RunE: func(cmd *cobra.Command, args []string) error {
		if specNameFlag == "" {
			return errors.New("--name is required")
		}

		var params map[string]any
		if specParamsFlag != "" {
			if err := json.Unmarshal([]byte(specParamsFlag), &params); err != nil {
				return errors.Wrap(err, "invalid --params JSON")
			}
		}

		r, err := newRuntime()
		if err != nil {
			return err
		}
		defer r.Close()

		sp := &spec.Specification{Name: specNameFlag, Params: params}
		if err := r.specs.Create(sp); err != nil {
			return err
		}
		fmt.Printf("Created specification %s (%s)\n", sp.ID, sp.Name)
		return nil
	},
}

var specsShowCmd = &cobra.Command{
	Use:   "show <spec-id>",
	Short: "Show a specification's params",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRuntime()
		if err != nil {
			return err
		}
		defer r.Close()

		sp, err := r.specs.Get(args[0])
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(sp, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to render specification")
		}
		fmt.Println(string(out))
		return nil
	},
}

var specsRmCmd = &cobra.Command{
	Use:   "rm <spec-id>",
	Short: "Delete a specification (fails while jobs reference it)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRuntime()
		if err != nil {
			return err
		}
		defer r.Close()

		if err := r.specs.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted specification %s\n", args[0])
		return nil
	},
}

var (
	specNameFlag   string
	specParamsFlag string
)

func init() {
	specsAddCmd.Flags().StringVar(&specNameFlag, "name", "", "Specification name")
	specsAddCmd.Flags().StringVar(&specParamsFlag, "params", "", "Params as a JSON object")

	SpecsCmd.AddCommand(specsLsCmd)
	SpecsCmd.AddCommand(specsAddCmd)
	SpecsCmd.AddCommand(specsShowCmd)
	SpecsCmd.AddCommand(specsRmCmd)
}
