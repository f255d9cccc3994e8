package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	pyth "pythclient"
)

var pricesCmd = &cobra.Command{
	Use:   "prices <symbol|product key>",
	Short: "Print the price accounts of one product",
	Long: `Resolve a product by account key or symbol, refresh its price account
chain and print the aggregate quote of every price account along with its
EMA derivations and per-publisher components.`,
	Args: cobra.ExactArgs(1),
	RunE: runPrices,
}

func init() {
	rootCmd.AddCommand(pricesCmd)
}

func runPrices(cmd *cobra.Command, args []string) error {
	client, _, err := setupClients()
	if err != nil {
		return err
	}
	ctx, cancel := cmdContext()
	defer cancel()

	product, err := resolveProduct(ctx, client, args[0])
	if err != nil {
		return err
	}
	prices, err := client.GetPrices(ctx, product)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s)\n", product.Symbol(), product.Key)

	types := make([]pyth.PriceType, 0, len(prices))
	for typ := range prices {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for _, typ := range types {
		printPrice(prices[typ])
	}
	return nil
}

func printPrice(price *pyth.PriceAccount) {
	agg := price.Aggregate
	fmt.Printf("\n%s account %s (version %d)\n", price.PriceType, price.Key, price.Version)
	fmt.Printf("  aggregate: %s ± %s (%s)\n", agg.Price(), agg.Confidence(), agg.Status)
	fmt.Printf("  exponent: %d, publishers: %d declared, %d listed\n",
		price.Exponent, price.NumComponents, len(price.Components))
	fmt.Printf("  slots: valid %d, last %d, published %d\n",
		price.ValidSlot, price.LastSlot, agg.PubSlot)

	if len(price.Derivations) > 0 {
		emas := make([]pyth.EmaType, 0, len(price.Derivations))
		for typ := range price.Derivations {
			emas = append(emas, typ)
		}
		sort.Slice(emas, func(i, j int) bool { return emas[i] < emas[j] })
		for _, typ := range emas {
			fmt.Printf("  %s: %s\n", typ, decimal.New(price.Derivations[typ], price.Exponent))
		}
	}

	if len(price.Components) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  PUBLISHER\tPRICE\tCONF\tSTATUS\tSLOT")
	for _, component := range price.Components {
		latest := component.Latest
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%d\n",
			component.Publisher, latest.Price(), latest.Confidence(), latest.Status, latest.PubSlot)
	}
	w.Flush()
}
