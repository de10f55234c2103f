// Package node assembles a running devnet from its parts: world state,
// transaction engine, block producer, predeployed assets, fork bridge,
// dump log, subscription bus, and the JSON-RPC/REST/WebSocket surfaces,
// all behind one HTTP listener.
package node

import (
	"context"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	devnethttp "github.com/NethermindEth/starknet-devnet-go/api/http"
	devnetrpc "github.com/NethermindEth/starknet-devnet-go/api/rpc"
	"github.com/NethermindEth/starknet-devnet-go/api/ws"
	"github.com/NethermindEth/starknet-devnet-go/core"
	"github.com/NethermindEth/starknet-devnet-go/core/block"
	"github.com/NethermindEth/starknet-devnet-go/core/classregistry"
	"github.com/NethermindEth/starknet-devnet-go/core/dumplog"
	"github.com/NethermindEth/starknet-devnet-go/core/engine"
	"github.com/NethermindEth/starknet-devnet-go/core/felt"
	"github.com/NethermindEth/starknet-devnet-go/core/forkbridge"
	"github.com/NethermindEth/starknet-devnet-go/core/messaging"
	"github.com/NethermindEth/starknet-devnet-go/core/predeployed"
	"github.com/NethermindEth/starknet-devnet-go/core/vm"
	"github.com/NethermindEth/starknet-devnet-go/core/worldstate"
	"github.com/NethermindEth/starknet-devnet-go/jsonrpc"
	"github.com/NethermindEth/starknet-devnet-go/metrics"
	"github.com/NethermindEth/starknet-devnet-go/subscription"
	"github.com/NethermindEth/starknet-devnet-go/utils"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/sourcegraph/conc"
)

// Config is the top-level devnet configuration, bound from flags and the
// optional config file by cmd/devnetd.
type Config struct {
	LogLevel utils.LogLevel `mapstructure:"log-level"`

	Host    string `mapstructure:"host"`
	Port    uint16 `mapstructure:"port"`
	Timeout uint64 `mapstructure:"timeout"` // per-request, seconds

	Accounts          uint32   `mapstructure:"accounts"`
	InitialBalance    string   `mapstructure:"initial-balance"`
	Seed              uint32   `mapstructure:"seed"`
	AccountClass      string   `mapstructure:"account-class"`
	AccountClassPath  string   `mapstructure:"account-class-custom"`
	ChainID           string   `mapstructure:"chain-id"`
	GasPrice          uint64   `mapstructure:"gas-price"`
	DataGasPrice      uint64   `mapstructure:"data-gas-price"`
	BlocksOnDemand    bool     `mapstructure:"blocks-on-demand"`
	DumpOn            string   `mapstructure:"dump-on"`
	DumpPath          string   `mapstructure:"dump-path"`
	StateArchive      string   `mapstructure:"state-archive-capacity"`
	ForkNetwork       string   `mapstructure:"fork-network"`
	ForkBlock         uint64   `mapstructure:"fork-block"`
	RestrictiveMode   bool     `mapstructure:"restrictive-mode"`
	RestrictedMethods []string `mapstructure:"restricted-methods"`
	DatabasePath      string   `mapstructure:"db-path"`
}

// DefaultConfig returns the stock devnet configuration.
func DefaultConfig() Config {
	return Config{
		LogLevel:       utils.INFO,
		Host:           "127.0.0.1",
		Port:           5050,
		Timeout:        120,
		Accounts:       10,
		InitialBalance: "1000000000000000000000",
		Seed:           0,
		AccountClass:   "cairo1",
		ChainID:        "SN_SEPOLIA",
		GasPrice:       100_000_000_000,
		DataGasPrice:   100_000_000_000,
		DumpOn:         "exit",
		StateArchive:   "none",
	}
}

// Node is one assembled devnet instance.
type Node struct {
	cfg *Config
	log utils.Logger

	devnet  *devnetrpc.Devnet
	rpcSrv  *jsonrpc.Server
	store   *worldstate.Store
	dumpLog *dumplog.Log
	handler http.Handler
}

// New validates cfg and wires every component up to (but not including)
// the listener, so tests can drive the assembled handler without a real
// socket.
func New(cfg *Config) (*Node, error) {
	log, err := utils.NewZapLogger(cfg.LogLevel)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "create logger")
	}
	n := &Node{cfg: cfg, log: log}
	if err := n.assemble(); err != nil {
		return nil, err
	}
	return n, nil
}

func parseArchive(s string) (worldstate.ArchiveCapacity, error) {
	switch s {
	case "", "none":
		return worldstate.ArchiveNone, nil
	case "full":
		return worldstate.ArchiveFull, nil
	default:
		return worldstate.ArchiveNone, fmt.Errorf("unknown state-archive-capacity %q (want none or full)", s)
	}
}

func parseDumpOn(s string) (dumplog.When, error) {
	switch s {
	case "", "exit":
		return dumplog.OnExit, nil
	case "block":
		return dumplog.OnBlock, nil
	default:
		return dumplog.OnExit, fmt.Errorf("unknown dump-on %q (want exit or block)", s)
	}
}

func parseBalance(s string) (*big.Int, error) {
	if s == "" {
		s = DefaultConfig().InitialBalance
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid initial balance %q", s)
	}
	return v, nil
}

func (n *Node) assemble() error {
	cfg := n.cfg

	archive, err := parseArchive(cfg.StateArchive)
	if err != nil {
		return err
	}
	dumpWhen, err := parseDumpOn(cfg.DumpOn)
	if err != nil {
		return err
	}
	balance, err := parseBalance(cfg.InitialBalance)
	if err != nil {
		return err
	}
	chainID, err := core.ParseChainId(cfg.ChainID)
	if err != nil {
		return pkgerrors.Wrap(err, "parse chain id")
	}

	reg := metrics.New()

	var fork *forkbridge.Bridge
	var forkReader worldstate.ForkReader
	if cfg.ForkNetwork != "" {
		fork = forkbridge.New(forkbridge.Config{
			URL:         cfg.ForkNetwork,
			BlockNumber: cfg.ForkBlock,
		}, reg)
		forkReader = fork
	}

	store, err := worldstate.Open(worldstate.Options{
		Path:    cfg.DatabasePath,
		Archive: archive,
		Fork:    forkReader,
	})
	if err != nil {
		return pkgerrors.Wrap(err, "open world state")
	}
	n.store = store

	registry := classregistry.New()
	interp := vm.New(store)

	accountClassHash, accountClass, err := resolveAccountClass(cfg)
	if err != nil {
		return err
	}

	deployer := predeployed.Deployer{
		Seed:             uint64(cfg.Seed),
		Count:            int(cfg.Accounts),
		InitialBalance:   balance,
		AccountClassHash: accountClassHash,
	}
	accounts, err := deployer.Derive()
	if err != nil {
		return pkgerrors.Wrap(err, "derive predeployed accounts")
	}
	feeTokens := predeployed.NewFeeTokens(predeployed.UDCAddress)
	plan := predeployed.Plan{
		FeeTokens:        feeTokens[:],
		UDCAddr:          predeployed.UDCAddress,
		Accounts:         accounts,
		AccountClass:     accountClass,
		AccountClassHash: accountClassHash,
		InitialBalance:   balance,
	}
	if err := plan.Seed(store, 0); err != nil {
		return pkgerrors.Wrap(err, "seed predeployed assets")
	}

	eng := engine.New(store, interp, registry, chainID.Felt(), feeTokens[0].Address)

	gasPrice := new(felt.Felt).SetUint64(cfg.GasPrice)
	dataGasPrice := new(felt.Felt).SetUint64(cfg.DataGasPrice)
	mode := block.ModeAutomatic
	if cfg.BlocksOnDemand {
		mode = block.ModeOnDemand
	}
	producer := block.New(block.Config{
		Mode:             mode,
		Archive:          archive,
		SequencerAddress: predeployed.UDCAddress,
		GasPrices: block.GasPrices{
			L1Gas:     gasPrice,
			L1DataGas: dataGasPrice,
			L2Gas:     gasPrice,
		},
		ChainID:         chainID.Felt(),
		ProtocolVersion: "0.13.3",
		Now:             func() uint64 { return uint64(time.Now().Unix()) },
	})

	bus := subscription.New()
	broker := messaging.NewBroker()
	n.dumpLog = dumplog.New(dumpWhen, cfg.DumpPath)
	restrictive := devnetrpc.NewRestrictiveMode(cfg.RestrictiveMode, cfg.RestrictedMethods)

	devnet, err := devnetrpc.NewDevnet(devnetrpc.Config{
		ChainID:     chainID,
		Store:       store,
		Engine:      eng,
		Producer:    producer,
		Registry:    registry,
		Predeployed: plan,
		FeeTokens:   feeTokens,
		Fork:        fork,
		Broker:      broker,
		DumpLog:     n.dumpLog,
		Bus:         bus,
		Metrics:     reg,
		Restrictive: restrictive,
		Log:         n.log,
	})
	if err != nil {
		return pkgerrors.Wrap(err, "construct devnet facade")
	}
	n.devnet = devnet

	rpcSrv, err := devnet.Server()
	if err != nil {
		return pkgerrors.Wrap(err, "register RPC methods")
	}
	n.rpcSrv = rpcSrv

	wsSrv := ws.New(rpcSrv, devnet, bus, n.log)
	ctl := devnethttp.New(devnet, restrictive, reg, n.log)

	mux := http.NewServeMux()
	ctl.Register(mux)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if isWebSocketUpgrade(r) {
			wsSrv.ServeHTTP(w, r)
			return
		}
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		resp, err := rpcSrv.HandleReader(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(resp)
	})

	handler := cors.AllowAll().Handler(mux)
	if cfg.Timeout > 0 {
		handler = timeoutMiddleware(handler, time.Duration(cfg.Timeout)*time.Second)
	}
	n.handler = handler
	return nil
}

func resolveAccountClass(cfg *Config) (*felt.Felt, core.Class, error) {
	if cfg.AccountClassPath != "" {
		raw, err := os.ReadFile(cfg.AccountClassPath)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(err, "read custom account class")
		}
		class := &core.Cairo0Class{Program: string(raw)}
		hash, err := classregistry.New().ClassHash(class)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(err, "hash custom account class")
		}
		return hash, class, nil
	}
	switch cfg.AccountClass {
	case "cairo0":
		class := &core.Cairo0Class{Program: "{}"}
		hash, err := classregistry.New().ClassHash(class)
		return hash, class, err
	case "", "cairo1":
		class := &core.Cairo1Class{Program: []*felt.Felt{&felt.One}, SemanticVersion: "0.1.0"}
		hash, err := classregistry.New().ClassHash(class)
		return hash, class, err
	default:
		return nil, nil, fmt.Errorf("unknown account-class %q (want cairo0 or cairo1)", cfg.AccountClass)
	}
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

// timeoutMiddleware enforces the per-request deadline: exceeding it
// yields HTTP 408 and releases the waiting client, though the in-flight
// handler runs to completion in the background.
func timeoutMiddleware(next http.Handler, d time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isWebSocketUpgrade(r) { // subscriptions outlive any request deadline
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()

		done := make(chan struct{})
		rec := &bufferedResponse{header: http.Header{}}
		go func() {
			next.ServeHTTP(rec, r.WithContext(ctx))
			close(done)
		}()

		select {
		case <-done:
			rec.flush(w)
		case <-ctx.Done():
			w.WriteHeader(http.StatusRequestTimeout)
			_, _ = w.Write([]byte("request timed out"))
		}
	})
}

// bufferedResponse captures a handler's response so nothing is written to
// the real connection after a timeout already was.
type bufferedResponse struct {
	header http.Header
	status int
	body   []byte
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	b.body = append(b.body, p...)
	return len(p), nil
}

func (b *bufferedResponse) flush(w http.ResponseWriter) {
	for k, vs := range b.header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if b.status != 0 {
		w.WriteHeader(b.status)
	}
	_, _ = w.Write(b.body)
}

// Handler exposes the assembled HTTP surface for tests.
func (n *Node) Handler() http.Handler { return n.handler }

// Devnet exposes the facade for tests.
func (n *Node) Devnet() *devnetrpc.Devnet { return n.devnet }

// Run serves until ctx is cancelled, then shuts the listener down and
// flushes the dump log when dump-on=exit and a path is configured.
func (n *Node) Run(ctx context.Context) error {
	addr := net.JoinHostPort(n.cfg.Host, fmt.Sprintf("%d", n.cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           n.handler,
		ReadHeaderTimeout: 30 * time.Second,
	}

	n.log.Infow("Starting devnet", "addr", addr, "config", fmt.Sprintf("%+v", *n.cfg))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg := conc.NewWaitGroup()
	errCh := make(chan error, 1)
	wg.Go(func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			cancel()
		}
	})
	wg.Go(func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	wg.Wait()

	n.flushOnExit()
	if err := n.store.Close(); err != nil {
		n.log.Errorw("Error closing world state", "err", err)
	}
	n.log.Infow("Devnet stopped")

	select {
	case err := <-errCh:
		return pkgerrors.Wrap(err, "serve")
	default:
		return nil
	}
}

func (n *Node) flushOnExit() {
	if n.dumpLog == nil || n.dumpLog.When() != dumplog.OnExit || n.dumpLog.Path() == "" {
		return
	}
	if err := n.dumpLog.Flush(""); err != nil {
		n.log.Errorw("Error flushing dump log on exit", "err", err)
	}
}

// Config returns a copy of the node's effective configuration.
func (n *Node) Config() Config { return *n.cfg }
