package main

import (
	"fmt"
	"text/tabwriter"

	"roleplay-realm-gateway/middleware/ratelimit"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newPoliciesCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "Print the effective per-action rate limit policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(v)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ACTION\tWINDOW\tMAX\tMESSAGE")
			for _, a := range ratelimit.NewCatalog(cfg.actionPolicies).Sorted() {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", a.Name, a.Policy.Window, a.Policy.MaxRequests, a.Message)
			}
			return tw.Flush()
		},
	}
}
