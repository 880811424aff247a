package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"eve-arbitrage/internal/ranking"
	"eve-arbitrage/internal/store"

	"github.com/spf13/cobra"
)

// NewRunCommand runs the pipeline once and prints the ranked routes.
func NewRunCommand() *cobra.Command {
	var (
		top      int
		category string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute routes once and print the best ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := ranking.NewFilter(category)
			if err != nil {
				return err
			}
			if top < 1 || top > ranking.MaxPageSize {
				return fmt.Errorf("--top must be between 1 and %d", ranking.MaxPageSize)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			batch, err := a.runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			page, err := ranking.NewIndex(batch.Routes).Page(filter, 1, top)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(page)
			}
			printPage(cmd.OutOrStdout(), batch, page)
			return nil
		},
	}
	cmd.Flags().IntVarP(&top, "top", "n", 20, "Number of routes to print")
	cmd.Flags().StringVar(&category, "category", "", "Only show routes for this item category")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the page as JSON")
	return cmd
}

func printPage(out io.Writer, batch *store.ResultBatch, page *ranking.Page) {
	fmt.Fprintf(out, "Run %s: %d routes (%d profitable)\n\n", batch.RunID, page.Summary.TotalRoutes, page.Summary.ProfitableRoutes)
	if len(page.Routes) == 0 {
		fmt.Fprintln(out, "No routes found.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tFROM\tTO\tBUY\tSELL\tUNITS\tNET/UNIT\tNET %\tTOTAL\tCARRIER\tJUMPS\tRISK")
	for _, r := range page.Routes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%.2f\t%d\t%.2f\t%.1f%%\t%.0f\t%s\t%d\t%s\n",
			r.TypeName, r.OriginName, r.DestinationName, r.BuyPrice, r.SellPrice,
			r.VolumeAvailable, r.NetProfitPerUnit, r.NetProfitPct*100, r.TotalNetProfit,
			r.Carrier, r.Hops, r.Risk)
	}
	tw.Flush()
}
