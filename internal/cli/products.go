package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List every product in the oracle directory",
	Long: `Walk the mapping account chain and print one line per product with its
account key and the symbol, asset type and quote currency attributes.`,
	Args: cobra.NoArgs,
	RunE: runProducts,
}

func init() {
	rootCmd.AddCommand(productsCmd)
}

func runProducts(cmd *cobra.Command, args []string) error {
	client, _, err := setupClients()
	if err != nil {
		return err
	}
	ctx, cancel := cmdContext()
	defer cancel()

	first, err := mappingKey()
	if err != nil {
		return err
	}
	products, err := client.GetAllProducts(ctx, first)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSYMBOL\tASSET TYPE\tQUOTE")
	for _, product := range products {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			product.Key, product.Symbol(),
			product.Attrs["asset_type"], product.Attrs["quote_currency"])
	}
	return w.Flush()
}
