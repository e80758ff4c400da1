package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lavanet/ledgerclient/protocol/common"
	"github.com/lavanet/ledgerclient/protocol/cost"
	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
	"github.com/lavanet/ledgerclient/protocol/metrics"
	"github.com/lavanet/ledgerclient/protocol/network"
	"github.com/lavanet/ledgerclient/protocol/receipt"
	"github.com/lavanet/ledgerclient/protocol/subscription"
	"github.com/lavanet/ledgerclient/protocol/wire"
	"github.com/lavanet/ledgerclient/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	ConfigFlag          = "config"
	EnvFileFlag         = "env-file"
	NetworkFlag         = "network"
	MetricsListenFlag   = "metrics-listen-address"
	HealthIntervalFlag  = "health-check-interval"
	LogLevelFlag        = "log-level"
	LogFormatFlag       = "log-format"
	PingFlag            = "ping"
	NodeFlag            = "node"
	SubscribeLimitFlag  = "limit"
	SubscribeStartFlag  = "start"
	DefaultEnvFile      = ".env"
	DefaultConfigName   = "ledgerclient"
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"
	commandTimeoutSlack = 5 * time.Second
)

// CreateLedgerClientCobraCommand is the ledgerclient binary: a config file, flags and
// the environment are merged into a Config and every subcommand builds its own Client.
func CreateLedgerClientCobraCommand() *cobra.Command {
	v := NewViper()
	root := &cobra.Command{
		Use:   "ledgerclient",
		Short: "Submit transactions and queries to a ledger network",
		Long: `ledgerclient talks to the consensus nodes of a ledger network with retries, node
health tracking and paid queries. Configuration is read from a yml file (--config, or
ledgerclient.yml in . and ./config), the command line and OPERATOR_ID / OPERATOR_KEY,
which may also come from a dotenv file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupCommand(cmd, v)
		},
	}
	flags := root.PersistentFlags()
	flags.String(ConfigFlag, "", "path to a yml configuration file")
	flags.String(EnvFileFlag, DefaultEnvFile, "dotenv file with OPERATOR_ID and OPERATOR_KEY")
	flags.String(NetworkFlag, network.Testnet, fmt.Sprintf("network preset (%s)", strings.Join(network.PresetNames(), "|")))
	flags.String(MetricsListenFlag, metrics.DisabledFlagOption, "the address to expose prometheus metrics (such as localhost:7779)")
	flags.Duration(HealthIntervalFlag, 0, "ping the network when idle for this long, 0 disables")
	flags.String(LogLevelFlag, defaultLogLevel, "log level (trace, debug, info, warn, error)")
	flags.String(LogFormatFlag, defaultLogFormat, "log format (json, text)")
	common.AddRollingLogConfig(root)

	root.AddCommand(
		createNetworkCommand(v),
		createReceiptCommand(v),
		createRecordCommand(v),
		createCostEstimateCommand(v),
		createSubscribeCommand(v),
	)
	return root
}

func setupCommand(cmd *cobra.Command, v *viper.Viper) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	utils.SetGlobalLoggingLevel(viper.GetString(LogLevelFlag))
	utils.SetJsonFormat(viper.GetString(LogFormatFlag) == "json")
	if _, err := common.SetupRollingLogger(); err != nil {
		return err
	}
	if err := LoadEnvFile(viper.GetString(EnvFileFlag)); err != nil {
		return err
	}

	v.SetConfigType("yml")
	if path := viper.GetString(ConfigFlag); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || viper.GetString(ConfigFlag) != "" {
			return utils.FormatError("could not load config file", err, utils.LogAttr("file", v.ConfigFileUsed()))
		}
		utils.FormatDebug("no config file, using flags and defaults")
	} else {
		utils.FormatInfo("read config file successfully", utils.LogAttr("file", v.ConfigFileUsed()))
	}
	// flags only override the file when set on the command line
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		switch flag.Name {
		case NetworkFlag, MetricsListenFlag, HealthIntervalFlag:
			if flag.Changed || !v.IsSet(flag.Name) {
				v.Set(flag.Name, flag.Value.String())
			}
		}
	})
	return nil
}

func newCommandClient(cmd *cobra.Command, v *viper.Viper) (*Client, error) {
	config, err := LoadConfig(v)
	if err != nil {
		return nil, err
	}
	return NewClient(cmd.Context(), config)
}

// commandContext ends on interrupt or when the receipt timeout plus some slack passed.
func commandContext(cmd *cobra.Command, c *Client) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	if c.config.Receipt.Timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.Receipt.Timeout+commandTimeoutSlack)
	return ctx, func() {
		cancel()
		stop()
	}
}

func transactionIDArg(arg string) (ledgertypes.TransactionID, error) {
	id, err := ledgertypes.TransactionIDFromString(arg)
	if err != nil {
		return id, utils.FormatWarning("invalid transaction id", err, utils.LogAttr("arg", arg))
	}
	return id, nil
}

func nodeOptions(cmd *cobra.Command) ([]ledgertypes.AccountID, error) {
	node, err := cmd.Flags().GetString(NodeFlag)
	if err != nil || node == "" {
		return nil, err
	}
	id, err := ledgertypes.AccountIDFromString(node)
	if err != nil {
		return nil, err
	}
	return []ledgertypes.AccountID{id}, nil
}

func pinned(nodes []ledgertypes.AccountID) []receipt.Option {
	opts := make([]receipt.Option, 0, len(nodes))
	for _, node := range nodes {
		opts = append(opts, receipt.PinToNode(node))
	}
	return opts
}

func createNetworkCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "network",
		Short: "List the nodes of the configured network, optionally pinging each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newCommandClient(cmd, v)
			if err != nil {
				return err
			}
			defer c.Close()
			ping, err := cmd.Flags().GetBool(PingFlag)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, c)
			defer cancel()
			return printNetwork(ctx, cmd.OutOrStdout(), c, ping)
		},
	}
	cmd.Flags().Bool(PingFlag, false, "ping every node")
	return cmd
}

func printNetwork(ctx context.Context, out io.Writer, c *Client, ping bool) error {
	for _, endpoint := range c.Network() {
		line := fmt.Sprintf("%s\t%s", endpoint.NodeID, strings.Join(endpoint.Addresses, ","))
		if ping {
			started := time.Now()
			if err := c.Ping(ctx, endpoint.NodeID); err != nil {
				line += "\tunreachable"
			} else {
				line += fmt.Sprintf("\tok %s", time.Since(started).Round(time.Millisecond))
			}
		}
		fmt.Fprintln(out, line)
	}
	for _, mirror := range c.MirrorNetwork() {
		fmt.Fprintf(out, "mirror\t%s\n", mirror.Address())
	}
	return nil
}

func createReceiptCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "receipt <transaction-id>",
		Short:   "Wait for the receipt of a transaction",
		Example: "ledgerclient receipt 0.0.1001@1700000000.000000001",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := transactionIDArg(args[0])
			if err != nil {
				return err
			}
			c, err := newCommandClient(cmd, v)
			if err != nil {
				return err
			}
			defer c.Close()
			nodes, err := nodeOptions(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, c)
			defer cancel()
			result, err := c.AwaitReceipt(ctx, id, pinned(nodes)...)
			if !result.TransactionID.IsZero() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, result.Status)
			}
			return err
		},
	}
	cmd.Flags().String(NodeFlag, "", "poll only this node")
	return cmd
}

func createRecordCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record <transaction-id>",
		Short: "Wait for a transaction and fetch its record, paid by the operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := transactionIDArg(args[0])
			if err != nil {
				return err
			}
			c, err := newCommandClient(cmd, v)
			if err != nil {
				return err
			}
			defer c.Close()
			nodes, err := nodeOptions(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, c)
			defer cancel()
			record, err := c.AwaitRecord(ctx, id, pinned(nodes)...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\t%s\tfee %s\tconsensus %s\n", id, record.Receipt.Status, record.TransactionFee, record.ConsensusTimestamp.Format(time.RFC3339Nano))
			for _, transfer := range record.Transfers {
				fmt.Fprintf(out, "\t%s\t%s\n", transfer.AccountID, transfer.Amount)
			}
			return nil
		},
	}
	cmd.Flags().String(NodeFlag, "", "query only this node")
	return cmd
}

func createCostEstimateCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cost-estimate <transaction-id>",
		Short: "Ask what the record query of a transaction costs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := transactionIDArg(args[0])
			if err != nil {
				return err
			}
			c, err := newCommandClient(cmd, v)
			if err != nil {
				return err
			}
			defer c.Close()
			nodes, err := nodeOptions(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, c)
			defer cancel()
			amount, err := c.GetCost(ctx, cost.Request{
				Name:          "record",
				Kind:          wire.KindRecordQuery,
				Method:        wire.MethodGetRecord,
				TransactionID: &id,
				NodeIDs:       nodes,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, amount)
			return nil
		},
	}
	cmd.Flags().String(NodeFlag, "", "ask only this node")
	return cmd
}

func createSubscribeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe <topic-id>",
		Short: "Print the messages of a topic from the mirror network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic, err := ledgertypes.AccountIDFromString(args[0])
			if err != nil {
				return err
			}
			limit, err := cmd.Flags().GetUint64(SubscribeLimitFlag)
			if err != nil {
				return err
			}
			start, err := cmd.Flags().GetDuration(SubscribeStartFlag)
			if err != nil {
				return err
			}
			c, err := newCommandClient(cmd, v)
			if err != nil {
				return err
			}
			defer c.Close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			query := subscription.Query{TopicID: topic, Limit: limit}
			if start > 0 {
				query.StartTime = time.Now().Add(-start)
			}
			handle, err := c.SubscribeTopic(ctx, query)
			if err != nil {
				return err
			}
			defer handle.Unsubscribe()
			for message := range handle.Messages() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", message.SequenceNumber, message.ConsensusTimestamp.Format(time.RFC3339Nano), message.Contents)
			}
			return handle.Err()
		},
	}
	cmd.Flags().Uint64(SubscribeLimitFlag, 0, "stop after this many messages, 0 streams until interrupted")
	cmd.Flags().Duration(SubscribeStartFlag, 0, "replay messages from this long ago")
	return cmd
}
