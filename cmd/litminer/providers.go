// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pdiddy/litminer/internal/llm"
	"github.com/pdiddy/litminer/internal/secrets"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List LLM providers and their key status",
	RunE: func(cmd *cobra.Command, args []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PROVIDER\tDEFAULT MODEL\tENDPOINT\tAPI KEY")
		for _, name := range llm.Providers() {
			p, _ := llm.Lookup(name)
			key := "not needed"
			if p.KeyEnv != "" {
				if v := llm.ResolveAPIKey(name, "", loadedSecrets); v != "" {
					key = secrets.Mask(v)
				} else {
					key = fmt.Sprintf("missing (set %s or .secrets/%s)", p.KeyEnv, llm.SecretName(name))
				}
			}
			endpoint := p.BaseURL
			if endpoint == "" {
				endpoint = "(sdk default)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, p.DefaultModel, endpoint, key)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
