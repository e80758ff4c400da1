package client

import (
	"errors"
	"os"
	"reflect"
	"time"

	"github.com/joho/godotenv"
	"github.com/lavanet/ledgerclient/protocol/chunker"
	"github.com/lavanet/ledgerclient/protocol/common"
	"github.com/lavanet/ledgerclient/protocol/cost"
	"github.com/lavanet/ledgerclient/protocol/executor"
	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
	"github.com/lavanet/ledgerclient/protocol/metrics"
	"github.com/lavanet/ledgerclient/protocol/network"
	"github.com/lavanet/ledgerclient/protocol/receipt"
	"github.com/lavanet/ledgerclient/protocol/subscription"
	"github.com/lavanet/ledgerclient/protocol/transport"
	"github.com/lavanet/ledgerclient/utils"
	"github.com/lavanet/ledgerclient/utils/sigs"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	OperatorIDEnv  = "OPERATOR_ID"
	OperatorKeyEnv = "OPERATOR_KEY"

	DefaultHealthCheckInterval = time.Minute

	// KeyDelimiter separates nested config keys. Node addresses and account ids contain
	// dots, so the viper default cannot be used.
	KeyDelimiter = "::"
)

type OperatorConfig struct {
	AccountID  string `mapstructure:"account-id"`
	PrivateKey string `mapstructure:"private-key"`
}

// Config is everything a client is built from. Nodes and MirrorNodes override the
// preset named by Network.
type Config struct {
	Network     string            `mapstructure:"network"`
	Nodes       map[string]string `mapstructure:"nodes"`
	MirrorNodes []string          `mapstructure:"mirror-nodes"`
	Operator    OperatorConfig    `mapstructure:"operator"`

	MetricsListenAddress string        `mapstructure:"metrics-listen-address"`
	HealthCheckInterval  time.Duration `mapstructure:"health-check-interval"`
	ChunkSize            int           `mapstructure:"chunk-size"`
	MaxChunks            int           `mapstructure:"max-chunks"`

	NodeHealth   network.HealthConfig `mapstructure:"node-health"`
	Transport    transport.Config     `mapstructure:"transport"`
	Executor     executor.Config      `mapstructure:"executor"`
	Cost         cost.Config          `mapstructure:"cost"`
	Receipt      receipt.Config       `mapstructure:"receipt"`
	Subscription subscription.Config  `mapstructure:"subscription"`
}

func DefaultConfig() Config {
	return Config{
		Network:              network.Testnet,
		MetricsListenAddress: metrics.DisabledFlagOption,
		HealthCheckInterval:  DefaultHealthCheckInterval,
		ChunkSize:            chunker.DefaultChunkSize,
		MaxChunks:            chunker.DefaultMaxChunks,
		NodeHealth:           network.DefaultHealthConfig(),
		Transport:            transport.DefaultConfig(),
		Executor:             executor.DefaultConfig(),
		Cost:                 cost.DefaultConfig(),
		Receipt:              receipt.DefaultConfig(),
		Subscription:         subscription.DefaultConfig(),
	}
}

var amountType = reflect.TypeOf(ledgertypes.Amount(0))

// StringToAmountHookFunc reads amounts written as hbar ("1.5", "2 hbar") or tinybars
// ("250t"). Plain integers are tinybars.
func StringToAmountHookFunc() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != amountType || from.Kind() != reflect.String {
			return data, nil
		}
		return ledgertypes.ParseHbar(data.(string))
	}
}

func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		StringToAmountHookFunc(),
	)
}

// NewViper returns a viper instance LoadConfig can read.
func NewViper() *viper.Viper {
	return viper.NewWithOptions(viper.KeyDelimiter(KeyDelimiter))
}

// LoadConfig decodes v, built by NewViper, over the defaults. The operator may also come
// from the OPERATOR_ID and OPERATOR_KEY environment variables.
func LoadConfig(v *viper.Viper) (Config, error) {
	config := DefaultConfig()
	if err := v.BindEnv("operator"+KeyDelimiter+"account-id", OperatorIDEnv); err != nil {
		return config, err
	}
	if err := v.BindEnv("operator"+KeyDelimiter+"private-key", OperatorKeyEnv); err != nil {
		return config, err
	}
	if err := v.Unmarshal(&config, viper.DecodeHook(DecodeHook())); err != nil {
		return config, utils.FormatError("failed decoding client configuration", errors.Join(common.ConstructionError, err),
			utils.LogAttr("file", v.ConfigFileUsed()))
	}
	return config, nil
}

// LoadEnvFile loads operator credentials from a dotenv file. A missing file is not an
// error, the variables may already be set.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		utils.FormatDebug("no env file", utils.LogAttr("path", path))
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return utils.FormatWarning("failed loading env file", err, utils.LogAttr("path", path))
	}
	return nil
}

// Endpoints resolves the consensus and mirror networks.
func (c Config) Endpoints() (nodes []network.NodeEndpoint, mirrors []network.NodeEndpoint, err error) {
	if len(c.Nodes) > 0 {
		nodes, err = network.EndpointsFromMap(c.Nodes)
	} else {
		nodes, err = network.LoadPreset(c.Network)
	}
	if err != nil {
		return nil, nil, err
	}
	if len(c.MirrorNodes) > 0 {
		mirrors, err = network.MirrorEndpoints(c.MirrorNodes)
	} else if c.Network != "" {
		mirrors, err = network.LoadMirrorPreset(c.Network)
	}
	if err != nil {
		return nil, nil, err
	}
	return nodes, mirrors, nil
}

// OperatorSigners parses the operator. ok is false when no operator is configured.
func (c Config) OperatorSigners() (account ledgertypes.AccountID, signers *sigs.SignerSet, ok bool, err error) {
	if c.Operator.AccountID == "" && c.Operator.PrivateKey == "" {
		return account, nil, false, nil
	}
	if c.Operator.AccountID == "" || c.Operator.PrivateKey == "" {
		return account, nil, false, utils.FormatWarning("operator needs both an account id and a private key", common.ConstructionError)
	}
	account, err = ledgertypes.AccountIDFromString(c.Operator.AccountID)
	if err != nil {
		return account, nil, false, errors.Join(common.ConstructionError, err)
	}
	key, err := sigs.ParsePrivateKey(c.Operator.PrivateKey)
	if err != nil {
		return account, nil, false, errors.Join(common.ConstructionError, err)
	}
	return account, sigs.NewSignerSet(key), true, nil
}
