package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	pyth "pythclient"
	"pythclient/solanarpc"
)

var watchCmd = &cobra.Command{
	Use:   "watch <symbol|product key>",
	Short: "Stream price updates for one product",
	Long: `Resolve a product and log every change to its price accounts until
interrupted. By default the price chain is polled on an interval; with
--subscribe the node pushes account updates over a websocket connection.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Duration("interval", 5*time.Second, "poll interval")
	watchCmd.Flags().Bool("subscribe", false, "use websocket account subscriptions instead of polling")
	for _, name := range []string{"interval", "subscribe"} {
		if err := viper.BindPFlag(name, watchCmd.Flags().Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	client, log, err := setupClients()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	product, err := resolveProduct(ctx, client, args[0])
	if err != nil {
		return err
	}
	prices, err := client.GetPrices(ctx, product)
	if err != nil {
		return err
	}
	log.Infof("Watching %s with %d price accounts", product.Symbol(), len(prices))
	for _, price := range prices {
		logPrice(log, product, price)
	}

	if viper.GetBool("subscribe") {
		return watchSubscribe(ctx, log, product, prices)
	}
	return watchPoll(ctx, log, client, product)
}

// watchPoll re-walks the price chain on every tick and logs what changed.
func watchPoll(ctx context.Context, log logrus.FieldLogger, client *pyth.Client, product *pyth.ProductAccount) error {
	interval := viper.GetDuration("interval")
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	known := pubSlots(product)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		added, removed, err := client.CheckPriceChanges(ctx, product, true)
		if err != nil {
			log.Errorf("Refresh failed: %v", err)
			continue
		}
		for _, price := range added {
			log.Infof("Price account %s joined the chain", price.Key)
		}
		for _, price := range removed {
			log.Infof("Price account %s left the chain", price.Key)
		}

		prices, err := product.Prices()
		if err != nil {
			return err
		}
		for _, price := range prices {
			if known[price.Key] != price.Aggregate.PubSlot {
				logPrice(log, product, price)
			}
		}
		known = pubSlots(product)
	}
}

// watchSubscribe drives updates from accountSubscribe notifications instead
// of polling. The update channels close when the connection drops, which
// ends the watch with an error.
func watchSubscribe(ctx context.Context, log logrus.FieldLogger, product *pyth.ProductAccount, prices map[pyth.PriceType]*pyth.PriceAccount) error {
	endpoint, err := wsEndpoint()
	if err != nil {
		return err
	}
	ws, err := solanarpc.Dial(endpoint, log)
	if err != nil {
		return err
	}
	defer ws.Close()

	group, ctx := errgroup.WithContext(ctx)
	for _, price := range prices {
		updates, err := ws.SubscribeAccount(price.Key, viper.GetString("commitment"))
		if err != nil {
			return err
		}
		group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case update, ok := <-updates:
					if !ok {
						return fmt.Errorf("subscription to %s closed", price.Key)
					}
					decoded, err := pyth.DecodePriceAccount(price.Key, pyth.AccountData{
						Slot: update.Slot,
						Data: update.Data,
					})
					if err != nil {
						log.Errorf("Discarding undecodable update for %s: %v", price.Key, err)
						continue
					}
					logPrice(log, product, decoded)
				}
			}
		})
	}
	return group.Wait()
}

func pubSlots(product *pyth.ProductAccount) map[solana.PublicKey]uint64 {
	slots := make(map[solana.PublicKey]uint64)
	prices, err := product.Prices()
	if err != nil {
		return slots
	}
	for _, price := range prices {
		slots[price.Key] = price.Aggregate.PubSlot
	}
	return slots
}

func logPrice(log logrus.FieldLogger, product *pyth.ProductAccount, price *pyth.PriceAccount) {
	agg := price.Aggregate
	log.WithFields(logrus.Fields{
		"type":   price.PriceType.String(),
		"status": agg.Status.String(),
		"slot":   agg.PubSlot,
	}).Infof("%s %s ± %s", product.Symbol(), agg.Price(), agg.Confidence())
}
