package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"zkminter/internal/campaign"
	"zkminter/internal/config"
	"zkminter/internal/mint"
	"zkminter/internal/server"
)

func newMintCmd(cfg func() *config.Config) *cobra.Command {
	var (
		campaignName string
		rows         []string
		noSleep      bool
		concurrency  int
	)

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Run the configured campaign over every account",
		Example: `  minter mint
  minter mint --network bsc,none --network arbitrum,optimism --no-sleep`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := cfg()
			if noSleep {
				c.Campaign.Sleep = false
			}
			if concurrency > 0 {
				c.App.Concurrency = concurrency
			}

			a, err := newApp(cmd.Context(), c)
			if err != nil {
				return err
			}
			defer a.Close()

			accounts, err := a.accounts()
			if err != nil {
				return err
			}

			req := server.RunRequest{Campaign: campaignName, MintNetworks: parseRows(rows)}
			sum, err := a.runner().Run(cmd.Context(), a.plan(req), accounts)
			if sum != nil {
				printSummary(cmd.OutOrStdout(), sum)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&campaignName, "campaign", "", "campaign name (default from config)")
	cmd.Flags().StringArrayVar(&rows, "network", nil, "a draw row, comma separated; repeat for more rows")
	cmd.Flags().BoolVar(&noSleep, "no-sleep", false, "disable pauses between mints and accounts")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "accounts processed at once (default from config)")
	return cmd
}

func parseRows(rows []string) [][]string {
	var out [][]string
	for _, r := range rows {
		var row []string
		for _, n := range strings.Split(r, ",") {
			row = append(row, strings.TrimSpace(n))
		}
		out = append(out, row)
	}
	return out
}

func printSummary(w io.Writer, sum *campaign.Summary) {
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(w, "\n%s: %d accounts in %s\n", sum.Campaign, sum.Accounts, sum.Finished.Sub(sum.Started).Round(time.Second))
	fmt.Fprintf(w, "  minted       %s\n", green(sum.Count(mint.Minted)))
	fmt.Fprintf(w, "  skipped      %d\n", sum.Skipped())
	fmt.Fprintf(w, "  unconfirmed  %s\n", yellow(sum.Count(mint.Unconfirmed)))
	fmt.Fprintf(w, "  unsupported  %d\n", sum.Count(mint.Unsupported))
	fmt.Fprintf(w, "  failed       %s\n", red(sum.Count(mint.Failed)))

	for _, a := range sum.Attempts() {
		if a.Skipped || a.Result.Outcome == mint.Minted || a.Result.Err == nil {
			continue
		}
		fmt.Fprintf(w, "  %s %s on %s: %v\n", red("x"), a.Account, a.Result.Network, a.Result.Err)
	}
}
