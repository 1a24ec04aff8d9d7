// Command paychand runs the XRP payment-channel connector plugin behind a
// websocket peer transport, using the in-memory ledger fake in place of a
// real rippled RPC endpoint.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"xrpchan/cmd/paychand/internal/secretsource"
	"xrpchan/config"
	"xrpchan/ilp"
	"xrpchan/ledger"
	"xrpchan/observability/logging"
	"xrpchan/plugin"
	"xrpchan/storage"
	"xrpchan/store"
	"xrpchan/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "./paychand.toml", "path to the connector's TOML config")
	listenAddress := flag.String("listen", "127.0.0.1:7768", "address the peer websocket and metrics endpoints bind to")
	memStore := flag.Bool("mem-store", false, "use an in-memory store instead of the LevelDB store under DataDir")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("PAYCHAND_ENV"))
	logger := logging.Setup("paychand", env)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.Secret == "" {
		secret, err := secretsource.NewSource(cfg.SecretEnv).Get()
		if err != nil {
			logger.Error("resolve secret", slog.String("secret_env", cfg.SecretEnv), slog.String("error", err.Error()))
			os.Exit(1)
		}
		cfg.Secret = secret
	}

	var backing storage.Store
	if *memStore || cfg.DataDir == "" {
		backing = storage.NewMemStore()
	} else {
		backing, err = storage.NewLevelDBStore(cfg.DataDir)
		if err != nil {
			logger.Error("open store", slog.String("data_dir", cfg.DataDir), slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	defer backing.Close()

	st := store.New(backing, logger)
	defer st.Close()

	ledgerClient := ledger.NewFakeLedger()

	srv := &transport.Server{Logger: logger}
	orchestrator := plugin.New(cfg, st, ledgerClient, demoCodec{}, echoDataHandler, srv.Send, logger)
	srv.Router = orchestrator

	mux := http.NewServeMux()
	mux.Handle("/peer", srv)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{Addr: *listenAddress, Handler: mux}

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	go orchestrator.Watch(watchCtx)

	go func() {
		logger.Info("paychand listening", slog.String("address", *listenAddress))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("paychand shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", slog.String("error", err.Error()))
	}
}

// echoDataHandler stands in for the external ILP data handler a real
// connector would inject to route a PREPARE onward; the demo binary has no
// upstream to route to, so it rejects every packet as unreachable.
func echoDataHandler(ctx context.Context, p *ilp.Prepare) (*ilp.Fulfill, *ilp.Reject, error) {
	reject := ilp.NewUnreachableError(fmt.Sprintf("no route to %s", p.Destination)).ToReject()
	return nil, reject, nil
}

// demoCodec is a JSON stand-in for the OER-encoded ILP packet codec a real
// deployment would inject as an external collaborator.
type demoCodec struct{}

type demoWirePrepare struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	ExpiresInMS int64  `json:"expiresInMs"`
}

func (demoCodec) DecodePrepare(raw []byte) (*ilp.Prepare, error) {
	var wp demoWirePrepare
	if err := json.Unmarshal(raw, &wp); err != nil {
		return nil, err
	}
	amount, err := uint256.FromDecimal(wp.Amount)
	if err != nil {
		return nil, err
	}
	p := &ilp.Prepare{Destination: wp.Destination, Amount: amount}
	if wp.ExpiresInMS > 0 {
		p.ExpiresAt = time.Now().Add(time.Duration(wp.ExpiresInMS) * time.Millisecond)
	}
	return p, nil
}

func (demoCodec) EncodeFulfill(f *ilp.Fulfill) ([]byte, error) { return json.Marshal(f) }
func (demoCodec) EncodeReject(r *ilp.Reject) ([]byte, error)   { return json.Marshal(r) }
