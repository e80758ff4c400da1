package client

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lavanet/ledgerclient/protocol/common"
	"github.com/lavanet/ledgerclient/protocol/cost"
	"github.com/lavanet/ledgerclient/protocol/executor"
	"github.com/lavanet/ledgerclient/protocol/ledgertypes"
	"github.com/lavanet/ledgerclient/protocol/network"
	"github.com/lavanet/ledgerclient/protocol/status"
	"github.com/lavanet/ledgerclient/protocol/subscription"
	"github.com/lavanet/ledgerclient/protocol/txn"
	"github.com/lavanet/ledgerclient/protocol/wire"
	"github.com/lavanet/ledgerclient/testutil/fakenode"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var (
	node3    = ledgertypes.NewAccountID(3)
	node4    = ledgertypes.NewAccountID(4)
	operator = ledgertypes.NewAccountID(1001)
	seedHex  = strings.Repeat("01", 32)
)

func balanceOK() fakenode.Handler {
	return func(context.Context, string, []byte) ([]byte, error) {
		response := wire.Response{Header: wire.ResponseHeader{PrecheckCode: status.Ok}}
		return response.Marshal(), nil
	}
}

// healthyNode accepts every transaction and has a SUCCESS receipt for each.
func healthyNode(t *testing.T, node ledgertypes.AccountID, record ledgertypes.Record) *fakenode.Server {
	return fakenode.StartServer(t, node, fakenode.Route(map[string]fakenode.Handler{
		wire.MethodSubmitTransaction: fakenode.Precheck(status.Ok),
		wire.MethodGetReceipt:        fakenode.Receipt(status.Ok, status.Success),
		wire.MethodGetRecord:         fakenode.Record(30, record),
		wire.MethodGetAccountBalance: balanceOK(),
	}), nil)
}

func testConfig(servers ...*fakenode.Server) Config {
	config := DefaultConfig()
	config.Network = ""
	config.Nodes = map[string]string{}
	for _, server := range servers {
		config.Nodes[server.Address] = server.NodeID.String()
	}
	config.MirrorNodes = []string{"127.0.0.1:1"}
	config.Operator = OperatorConfig{AccountID: operator.String(), PrivateKey: seedHex}
	config.MetricsListenAddress = ""
	config.HealthCheckInterval = 0
	config.Receipt.InitialDelay = time.Millisecond
	config.Receipt.PollDelay = time.Millisecond
	config.Executor.MinBackoff = time.Millisecond
	config.Executor.MaxBackoff = 2 * time.Millisecond
	return config
}

func newTestClient(t *testing.T, config Config) (*Client, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	client, err := NewClient(context.Background(), config, WithMetricsRegistry(registry))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, client.Close())
	})
	return client, registry
}

func transfer() txn.Transaction {
	return txn.Transaction{
		Kind:   wire.KindPaymentTransfer,
		Method: wire.MethodSubmitTransaction,
		Fee:    ledgertypes.Hbar,
		Transfers: []ledgertypes.Transfer{
			{AccountID: operator, Amount: -10},
			{AccountID: ledgertypes.NewAccountID(2002), Amount: 10},
		},
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(OperatorIDEnv, "0.0.1001")
	t.Setenv(OperatorKeyEnv, seedHex)
	v := NewViper()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
network: previewnet
nodes:
  "10.0.0.1:50211": "0.0.3"
mirror-nodes: "mirror-a:443,mirror-b:443"
executor:
  max-attempts: 4
  attempt-timeout: 3s
cost:
  max-query-payment: "0.5"
  minimum-fee: 250t
receipt:
  poll-delay: 250ms
`)))
	config, err := LoadConfig(v)
	require.NoError(t, err)

	require.Equal(t, "previewnet", config.Network)
	require.Equal(t, 4, config.Executor.MaxAttempts)
	require.Equal(t, 3*time.Second, config.Executor.AttemptTimeout)
	require.Equal(t, DefaultConfig().Executor.RequestTimeout, config.Executor.RequestTimeout)
	require.Equal(t, ledgertypes.Hbar/2, config.Cost.MaxQueryPayment)
	require.Equal(t, 250*ledgertypes.Tinybar, config.Cost.MinimumFee)
	require.Equal(t, 250*time.Millisecond, config.Receipt.PollDelay)
	require.Equal(t, []string{"mirror-a:443", "mirror-b:443"}, config.MirrorNodes)

	nodes, mirrors, err := config.Endpoints()
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, node3, nodes[0].NodeID)
	require.Len(t, mirrors, 2)
	require.True(t, mirrors[0].TransportSecurity)

	account, signers, ok, err := config.OperatorSigners()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, operator, account)
	require.Equal(t, 1, signers.Len())
}

func TestLoadConfigRejectsBadAmount(t *testing.T) {
	v := NewViper()
	v.Set("cost"+KeyDelimiter+"max-query-payment", "lots")
	_, err := LoadConfig(v)
	require.ErrorIs(t, err, common.ConstructionError)
}

func TestOperatorNeedsBothParts(t *testing.T) {
	config := DefaultConfig()
	config.Operator.AccountID = "0.0.1001"
	_, _, _, err := config.OperatorSigners()
	require.ErrorIs(t, err, common.ConstructionError)

	config.Operator = OperatorConfig{}
	_, signers, ok, err := config.OperatorSigners()
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, signers)
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), "operator.env")
	require.NoError(t, os.WriteFile(path, []byte("LEDGERCLIENT_TEST_VALUE=from-file\n"), 0o600))
	t.Setenv("LEDGERCLIENT_TEST_VALUE", "")
	os.Unsetenv("LEDGERCLIENT_TEST_VALUE")
	require.NoError(t, LoadEnvFile(path))
	require.Equal(t, "from-file", os.Getenv("LEDGERCLIENT_TEST_VALUE"))
}

func TestSubmitAndWaitOverGRPC(t *testing.T) {
	server := healthyNode(t, node3, ledgertypes.Record{})
	client, registry := newTestClient(t, testConfig(server))

	receipt, err := client.SubmitAndWait(context.Background(), transfer())
	require.NoError(t, err)
	require.Equal(t, status.Success, receipt.Status)
	require.Equal(t, operator, receipt.TransactionID.AccountID)

	count, err := testutil.GatherAndCount(registry, "ledgerclient_total_operations")
	require.NoError(t, err)
	require.Equal(t, 2, count) // the submission and the receipt
}

func TestSubmitMovesPastUnreachableNode(t *testing.T) {
	down := fakenode.StartServer(t, node3, fakenode.Unavailable(), nil)
	up := healthyNode(t, node4, ledgertypes.Record{})
	client, _ := newTestClient(t, testConfig(down, up))

	for i := 0; i < 3; i++ {
		handle, err := client.Submit(context.Background(), transfer())
		require.NoError(t, err)
		require.Equal(t, node4, handle.NodeID)
	}
	node, ok := client.registry.Node(node3)
	require.True(t, ok)
	require.False(t, client.registry.IsHealthy(node))
}

func TestSubmitAsync(t *testing.T) {
	server := healthyNode(t, node3, ledgertypes.Record{})
	client, _ := newTestClient(t, testConfig(server))

	future, err := client.SubmitAsync(context.Background(), transfer())
	require.NoError(t, err)
	handle, err := future.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, status.Ok, handle.Value.PrecheckCode)
}

func TestWithoutOperator(t *testing.T) {
	server := healthyNode(t, node3, ledgertypes.Record{})
	config := testConfig(server)
	config.Operator = OperatorConfig{}
	client, _ := newTestClient(t, config)

	_, err := client.Submit(context.Background(), transfer())
	require.ErrorIs(t, err, common.ConstructionError)
	require.ErrorIs(t, err, NoOperatorError)
	_, err = client.NewTransactionID()
	require.ErrorIs(t, err, NoOperatorError)
	_, err = client.GetCost(context.Background(), cost.Request{Name: "record", Kind: wire.KindRecordQuery, Method: wire.MethodGetRecord})
	require.ErrorIs(t, err, NoOperatorError)

	// receipts are free
	id := ledgertypes.TransactionID{AccountID: operator, ValidStart: time.Unix(1700000000, 5).UTC()}
	receipt, err := client.AwaitReceipt(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, receipt.TransactionID)
}

func TestCostEstimateAndPaidRecord(t *testing.T) {
	record := ledgertypes.Record{
		Receipt:        ledgertypes.Receipt{Status: status.Success},
		TransactionFee: 12,
		Transfers:      []ledgertypes.Transfer{{AccountID: operator, Amount: -12}},
	}
	server := healthyNode(t, node3, record)
	client, _ := newTestClient(t, testConfig(server))
	id, err := client.NewTransactionID()
	require.NoError(t, err)

	amount, err := client.GetCost(context.Background(), cost.Request{
		Name: "record", Kind: wire.KindRecordQuery, Method: wire.MethodGetRecord, TransactionID: &id,
	})
	require.NoError(t, err)
	require.Equal(t, ledgertypes.Amount(30), amount)

	fetched, err := client.AwaitRecord(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, fetched.Receipt.TransactionID)
	require.Equal(t, record.Transfers, fetched.Transfers)
}

func TestExecuteQueryAboveMaximumPayment(t *testing.T) {
	server := healthyNode(t, node3, ledgertypes.Record{Receipt: ledgertypes.Receipt{Status: status.Success}})
	config := testConfig(server)
	config.Cost.MaxQueryPayment = 10
	client, _ := newTestClient(t, config)
	id, err := client.NewTransactionID()
	require.NoError(t, err)

	_, err = ExecuteQuery(context.Background(), client, cost.Query[ledgertypes.Record]{
		Request:         cost.Request{Name: "record", Kind: wire.KindRecordQuery, Method: wire.MethodGetRecord, TransactionID: &id},
		PaymentRequired: true,
		Decode: func(_ network.NodeEndpoint, response wire.Response) (ledgertypes.Record, status.Code, error) {
			return ledgertypes.Record{}, response.Header.PrecheckCode, nil
		},
	})
	var maxErr *common.MaxQueryPaymentError
	require.ErrorAs(t, err, &maxErr)
	require.Equal(t, ledgertypes.Amount(30), maxErr.Cost)
}

func TestSubmitChunked(t *testing.T) {
	var chunks atomic.Int32
	server := fakenode.StartServer(t, node3, fakenode.Route(map[string]fakenode.Handler{
		wire.MethodSubmitTopicMessage: func(ctx context.Context, method string, request []byte) ([]byte, error) {
			chunks.Add(1)
			return fakenode.Precheck(status.Ok)(ctx, method, request)
		},
		wire.MethodGetReceipt: fakenode.Receipt(status.Ok, status.Success),
	}), nil)
	config := testConfig(server)
	config.ChunkSize = 1024
	client, _ := newTestClient(t, config)

	template := txn.Transaction{Kind: "consensusSubmitMessage", Method: wire.MethodSubmitTopicMessage, Fee: ledgertypes.Hbar}
	result, err := client.SubmitChunked(context.Background(), template, bytes.Repeat([]byte("x"), 2500))
	require.NoError(t, err)
	require.Equal(t, 3, result.Total)
	require.Equal(t, 3, result.Completed)
	require.Equal(t, int32(3), chunks.Load())
	first := result.Handles[0].RequestID
	require.Equal(t, first.ForChunk(2), result.Handles[2].RequestID)
}

func TestSubmitChunkedTooLarge(t *testing.T) {
	server := healthyNode(t, node3, ledgertypes.Record{})
	config := testConfig(server)
	config.ChunkSize = 10
	config.MaxChunks = 2
	client, _ := newTestClient(t, config)

	template := txn.Transaction{Kind: "consensusSubmitMessage", Method: wire.MethodSubmitTopicMessage}
	_, err := client.SubmitChunked(context.Background(), template, make([]byte, 21))
	require.ErrorIs(t, err, common.ConstructionError)
}

func TestPing(t *testing.T) {
	up := healthyNode(t, node3, ledgertypes.Record{})
	down := healthyNode(t, node4, ledgertypes.Record{})
	client, _ := newTestClient(t, testConfig(up, down))
	down.Stop()

	require.NoError(t, client.Ping(context.Background(), node3))
	require.Error(t, client.Ping(context.Background(), node4))
	require.Error(t, client.PingAll(context.Background()))
	require.NoError(t, client.pingAny(context.Background()))
	require.ErrorIs(t, client.Ping(context.Background(), ledgertypes.NewAccountID(99)), common.ConstructionError)

	up.Stop()
	require.ErrorIs(t, client.pingAny(context.Background()), common.NoHealthyNodeError)
}

func TestHealthMonitorInClient(t *testing.T) {
	server := healthyNode(t, node3, ledgertypes.Record{})
	config := testConfig(server)
	config.HealthCheckInterval = time.Hour
	client, _ := newTestClient(t, config)

	require.Eventually(t, client.IsHealthy, 5*time.Second, 10*time.Millisecond)
}

func TestReplaceNetworkRetiresChannels(t *testing.T) {
	first := healthyNode(t, node3, ledgertypes.Record{})
	second := healthyNode(t, node4, ledgertypes.Record{})
	client, _ := newTestClient(t, testConfig(first, second))
	require.NoError(t, client.PingAll(context.Background()))
	require.Equal(t, 2, client.pool.Len())

	require.NoError(t, client.ReplaceNetwork([]network.NodeEndpoint{first.Endpoint()}))
	require.Equal(t, 1, client.pool.Len())
	require.Len(t, client.Network(), 1)

	require.ErrorIs(t, client.ReplaceNetwork([]network.NodeEndpoint{first.Endpoint(), first.Endpoint()}), network.InvalidNetworkError)
}

func TestSubscribeTopicFromMirror(t *testing.T) {
	topic := ledgertypes.NewAccountID(5005)
	mirror := fakenode.StartServer(t, ledgertypes.NewAccountID(9), fakenode.Unavailable(),
		func(ctx context.Context, _ string, request []byte, send func([]byte) error) error {
			message := wire.TopicMessage{ConsensusTimestamp: time.Unix(1700000000, 1), Contents: []byte("hello"), SequenceNumber: 1}
			return send(message.Marshal())
		})
	node := healthyNode(t, node3, ledgertypes.Record{})
	config := testConfig(node)
	config.MirrorNodes = []string{mirror.Address}
	client, _ := newTestClient(t, config)

	handle, err := client.SubscribeTopic(context.Background(), subscription.Query{TopicID: topic})
	require.NoError(t, err)
	var received []string
	for message := range handle.Messages() {
		received = append(received, string(message.Contents))
	}
	require.NoError(t, handle.Err())
	require.Equal(t, []string{"hello"}, received)
}

func TestHealthMonitor(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	var failing atomic.Bool
	failing.Store(true)
	monitor := NewHealthMonitor(5*time.Millisecond, func(ctx context.Context) error {
		if failing.Load() {
			return common.NoHealthyNodeError
		}
		return nil
	})
	require.False(t, monitor.IsHealthy())
	require.True(t, monitor.LastCheck().IsZero())

	ctx, cancel := context.WithCancel(context.Background())
	monitor.Start(ctx)
	require.Eventually(t, func() bool { return !monitor.LastCheck().IsZero() }, time.Second, time.Millisecond)
	require.False(t, monitor.IsHealthy())

	failing.Store(false)
	require.Eventually(t, monitor.IsHealthy, time.Second, time.Millisecond)

	failing.Store(true)
	require.Eventually(t, func() bool { return !monitor.IsHealthy() }, time.Second, time.Millisecond)
	monitor.LogSuccess()
	cancel()
	<-monitor.Done()
}

func TestCommandNetworkAndReceipt(t *testing.T) {
	server := healthyNode(t, node3, ledgertypes.Record{})
	dir := t.TempDir()
	path := filepath.Join(dir, "ledgerclient.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
nodes:
  "`+server.Address+`": "0.0.3"
mirror-nodes: "127.0.0.1:1"
receipt:
  initial-delay: 1ms
  poll-delay: 1ms
`), 0o600))

	run := func(args ...string) string {
		cmd := CreateLedgerClientCobraCommand()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(append(args, "--config", path, "--env-file", filepath.Join(dir, "none.env")))
		require.NoError(t, cmd.ExecuteContext(context.Background()))
		return out.String()
	}

	output := run("network", "--ping")
	require.Contains(t, output, "0.0.3\t"+server.Address+"\tok")
	require.Contains(t, output, "mirror\t127.0.0.1:1")

	id := ledgertypes.TransactionID{AccountID: operator, ValidStart: time.Unix(1700000000, 7).UTC()}
	output = run("receipt", id.String())
	require.Equal(t, id.String()+"\t"+status.Success.String()+"\n", output)
}

func TestExecutorOptionsReachExecutor(t *testing.T) {
	server := fakenode.StartServer(t, node3, fakenode.Route(map[string]fakenode.Handler{
		wire.MethodSubmitTransaction: fakenode.Precheck(status.Busy),
	}), nil)
	config := testConfig(server)
	config.Executor.MaxAttempts = 3
	var sleeps atomic.Int32
	registry := prometheus.NewRegistry()
	client, err := NewClient(context.Background(), config, WithMetricsRegistry(registry), WithExecutorOptions(
		executor.WithSleeper(func(ctx context.Context, _ time.Duration) error {
			sleeps.Add(1)
			return ctx.Err()
		})))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Submit(context.Background(), transfer())
	require.ErrorIs(t, err, common.MaxAttemptsExceededError)
	require.Equal(t, int32(2), sleeps.Load())
}
