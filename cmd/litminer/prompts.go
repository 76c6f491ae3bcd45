// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/litminer/internal/prompt"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage prompt templates",
	Long: `Prompts lists, shows, and initializes the prompt templates in the prompts
directory. A template is a .txt file that contains the placeholder
{content_to_analyze} exactly once; its display name is the file name with
underscores replaced by spaces. An optional <name>.schema.json next to it
is a JSON Schema the model's reply must satisfy.`,
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := loadLibrary(cmd)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, warn := range lib.Warnings {
			fmt.Fprintf(w, "warning: %s\n", warn)
		}
		for _, name := range lib.Names() {
			t, _ := lib.Get(name)
			source := t.Path
			if source == "" {
				source = "(built-in)"
			}
			schema := ""
			if len(t.Schema) > 0 {
				schema = "  [schema]"
			}
			fmt.Fprintf(w, "%-30s %s%s\n", t.Name, source, schema)
		}
		return nil
	},
}

var promptsShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Print a template",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lib, err := loadLibrary(cmd)
		if err != nil {
			return err
		}
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		t, err := lib.Resolve(name)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), t.Text)
		return nil
	},
}

var promptsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the built-in template into the prompts directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := bindFlags(cmd); err != nil {
			return err
		}
		path, err := prompt.WriteDefault(viper.GetString("prompt.dir"))
		if err != nil {
			return err
		}
		if path == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "default template already exists")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func loadLibrary(cmd *cobra.Command) (*prompt.Library, error) {
	if err := bindFlags(cmd); err != nil {
		return nil, err
	}
	return prompt.LoadDir(viper.GetString("prompt.dir"))
}

func init() {
	for _, c := range []*cobra.Command{promptsListCmd, promptsShowCmd, promptsInitCmd} {
		c.Flags().String("prompts-dir", "", "directory of prompt templates (default \"prompts\")")
		promptsCmd.AddCommand(c)
	}
	rootCmd.AddCommand(promptsCmd)
}
