package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"zkminter/internal/config"
)

func newNetworksCmd(cfg func() *config.Config) *cobra.Command {
	var ping bool

	cmd := &cobra.Command{
		Use:   "networks",
		Short: "Resolve and print every known network",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfg())
			if err != nil {
				return err
			}
			defer a.Close()

			ok := color.New(color.FgGreen).SprintFunc()
			bad := color.New(color.FgRed).SprintFunc()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCHAIN ID\tFEES\tCOIN\tRPC\tSTATUS")
			for _, def := range a.defs {
				ctx, cancel := context.WithTimeout(cmd.Context(), 20*time.Second)
				desc, err := a.registry.Resolve(ctx, def)
				if err != nil {
					cancel()
					fmt.Fprintf(tw, "%s\t-\t%s\t-\t-\t%s\n", def.Name, def.FeeModel, bad(err))
					continue
				}
				status := "-"
				if ping {
					if err := a.probe(def)(ctx); err != nil {
						status = bad(err)
					} else {
						status = ok("ok")
					}
				}
				cancel()
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s/%d\t%s\t%s\n",
					desc.Title(), desc.ChainID, desc.FeeModel, desc.CoinSymbol, desc.CoinDecimals, desc.RPC, status)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&ping, "ping", false, "check that each endpoint answers")
	return cmd
}
