package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	pyth "pythclient"
	"pythclient/solanarpc"
)

// network is one public Pyth deployment: the Solana RPC endpoints and the
// first mapping account of its product directory.
type network struct {
	RPC     string
	WS      string
	Mapping string
}

var networks = map[string]network{
	"mainnet": {
		RPC:     "https://api.mainnet-beta.solana.com",
		WS:      "wss://api.mainnet-beta.solana.com",
		Mapping: "AHtgzX45WTKfkPG53L6WYhGEXwQkN1BVknET3sVsLe8U",
	},
	"devnet": {
		RPC:     "https://api.devnet.solana.com",
		WS:      "wss://api.devnet.solana.com",
		Mapping: "BmA9Z6FjioHJPpjT39QazZyhDRUdZy2ezwx4GiDdE2u2",
	},
	"testnet": {
		RPC:     "https://api.testnet.solana.com",
		WS:      "wss://api.testnet.solana.com",
		Mapping: "AFmdnt9ng1uVxqCmqwQJDAYC5cKTkw8gJKSM5PnzuF6z",
	},
}

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pythdump",
	Short: "pythdump - inspect Pyth oracle accounts on Solana",
	Long: `pythdump reads the Pyth oracle's on-chain account graph from a Solana node
and prints it: the product directory, per-product price accounts with their
publisher components, and a live view of price updates.`,
	Version:       "0.2.0-dev",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "configuration file path")
	flags.String("network", "mainnet", "Pyth deployment to read (mainnet, devnet or testnet)")
	flags.String("rpc-url", "", "Solana HTTP JSON-RPC endpoint (overrides --network)")
	flags.String("ws-url", "", "Solana websocket endpoint (overrides --network)")
	flags.String("mapping", "", "first mapping account of the product directory (overrides --network)")
	flags.String("commitment", solanarpc.CommitmentConfirmed, "commitment level for reads (processed, confirmed or finalized)")
	flags.Duration("timeout", 30*time.Second, "overall timeout for one-shot commands, 0 disables it")
	flags.Float64("rate-limit", 0, "max RPC requests per second, 0 disables the limiter")
	flags.String("log-level", "info", "log level (trace, debug, info, warning, error)")
	flags.String("log-format", "text", "log format (text or json)")
	flags.String("log-file", "", "log destination: empty or 'stderr', 'stdout', or a file path")

	for _, name := range []string{
		"network", "rpc-url", "ws-url", "mapping", "commitment",
		"timeout", "rate-limit", "log-level", "log-format", "log-file",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".pythdump")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PYTHDUMP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// a missing default config file is fine, an unreadable explicit one is not
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			fmt.Fprintf(os.Stderr, "Error: reading config: %v\n", err)
			os.Exit(1)
		}
	}
}

func currentNetwork() (network, error) {
	name := viper.GetString("network")
	if name == "" {
		name = "mainnet"
	}
	net, ok := networks[name]
	if !ok {
		return network{}, fmt.Errorf("unknown network %q", name)
	}
	return net, nil
}

func rpcEndpoint() (string, error) {
	if url := viper.GetString("rpc-url"); url != "" {
		return url, nil
	}
	net, err := currentNetwork()
	if err != nil {
		return "", err
	}
	return net.RPC, nil
}

func wsEndpoint() (string, error) {
	if url := viper.GetString("ws-url"); url != "" {
		return url, nil
	}
	net, err := currentNetwork()
	if err != nil {
		return "", err
	}
	return net.WS, nil
}

// mappingKey returns the first mapping account to walk: --mapping when set,
// otherwise the selected network's well-known key.
func mappingKey() (solana.PublicKey, error) {
	encoded := viper.GetString("mapping")
	if encoded == "" {
		net, err := currentNetwork()
		if err != nil {
			return solana.PublicKey{}, err
		}
		encoded = net.Mapping
	}
	key, err := solana.PublicKeyFromBase58(encoded)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid mapping key %q: %w", encoded, err)
	}
	return key, nil
}

// setupClients builds the logger and the oracle client every command starts
// from.
func setupClients() (*pyth.Client, logrus.FieldLogger, error) {
	log, err := newLogger(
		viper.GetString("log-level"),
		viper.GetString("log-format"),
		viper.GetString("log-file"),
	)
	if err != nil {
		return nil, nil, err
	}
	endpoint, err := rpcEndpoint()
	if err != nil {
		return nil, nil, err
	}
	source := solanarpc.NewClientWithOpts(endpoint, &solanarpc.ClientOpts{
		Commitment:        viper.GetString("commitment"),
		RequestsPerSecond: viper.GetFloat64("rate-limit"),
		Log:               log,
	})
	return pyth.NewClient(source, log), log, nil
}

// cmdContext returns the context for one-shot commands: cancelled on
// interrupt and bounded by --timeout when it is positive.
func cmdContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	timeout := viper.GetDuration("timeout")
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// signalContext is cmdContext without the timeout, for commands that run
// until interrupted.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// resolveProduct accepts a product account key or a product symbol. Keys are
// fetched directly; anything that does not parse as a key is matched against
// the symbol of every product in the directory.
func resolveProduct(ctx context.Context, client *pyth.Client, arg string) (*pyth.ProductAccount, error) {
	if key, err := solana.PublicKeyFromBase58(arg); err == nil {
		return client.GetProductAccount(ctx, key)
	}

	first, err := mappingKey()
	if err != nil {
		return nil, err
	}
	products, err := client.GetAllProducts(ctx, first)
	if err != nil {
		return nil, err
	}
	for _, product := range products {
		if product.Symbol() == arg {
			return product, nil
		}
	}
	return nil, fmt.Errorf("no product with symbol %q", arg)
}
