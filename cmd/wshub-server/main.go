// Command wshub-server is a minimal demonstration host for the wshub
// core: it loads a list of paths from configuration, registers one
// Host per path on a Manager, and upgrades incoming HTTP connections
// via gorilla/websocket, handing each connection off to the manager's
// registry as a Session.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "go.uber.org/automaxprocs"

	"github.com/lk2023060901/wshub-go/application"
	"github.com/lk2023060901/wshub-go/internal/wshub"
	"github.com/lk2023060901/wshub-go/internal/wsframe"
	zlog "github.com/lk2023060901/wshub-go/pkg/log"
)

// serverConfig mirrors the "server" section of config.yaml.
type serverConfig struct {
	Addr         string   `mapstructure:"addr"`
	Paths        []string `mapstructure:"paths"`
	FragmentSize int      `mapstructure:"fragment_size"`
	KeepClean    bool     `mapstructure:"keep_clean"`

	// CompressPaths lists paths whose outbound broadcasts should be
	// zstd-compressed before fragmentation — typically large, repetitive
	// payloads (e.g. JSON state snapshots) rather than chat-sized text.
	CompressPaths   []string `mapstructure:"compress_paths"`
	MinCompressSize int      `mapstructure:"min_compress_size"`
}

func main() {
	app := application.New()
	if err := app.Run(); err != nil {
		zlog.L().Sugar().Fatalf("application bootstrap failed: %v", err)
	}

	cfg := serverConfig{
		Addr:         ":8080",
		FragmentSize: 64 * 1024,
		KeepClean:    true,
	}
	if appCfg := app.Config(); appCfg != nil {
		if err := appCfg.UnmarshalKey("server", &cfg); err != nil {
			app.Logger("server").Sugar().Warnf("failed to read server config, using defaults: %v", err)
		}
	}
	if len(cfg.Paths) == 0 {
		cfg.Paths = []string{"/chat"}
	}

	var compressor *wsframe.Compressor
	compressPaths := make(map[string]bool, len(cfg.CompressPaths))
	for _, p := range cfg.CompressPaths {
		compressPaths[wshub.Normalize(p)] = true
	}
	if len(compressPaths) > 0 {
		var err error
		compressor, err = wsframe.NewCompressor()
		if err != nil {
			app.Logger("server").Sugar().Fatalf("constructing compressor: %v", err)
		}
		compressor.SetMinCompressSize(cfg.MinCompressSize)
		defer compressor.Close()
	}

	manager := wshub.NewManager(cfg.FragmentSize, cfg.KeepClean)
	for _, path := range cfg.Paths {
		factory := wshub.DefaultBehaviorFactory
		if compressPaths[wshub.Normalize(path)] {
			factory = wshub.NewCompressingBehaviorFactory(factory, compressor)
		}
		registerPath(app, manager, path, factory)
	}
	manager.Start()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	registry := app.MetricsRegistry()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		host := manager.TryGet(r.URL.Path)
		if host == nil {
			http.NotFound(w, r)
			return
		}

		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			app.Logger("server").Sugar().Warnf("upgrade failed for %s: %v", r.URL.Path, err)
			return
		}

		// The handshake is all gorilla/websocket is used for; once
		// upgraded, this core's own wsframe codec owns every byte
		// written to the connection, so sessions are built over the
		// raw net.Conn rather than gorilla's framing wrapper.
		conn := wsConn.UnderlyingConn()
		if host.Accept(context.Background(), uuid.NewString(), conn) == nil {
			_ = conn.Close()
		}
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		app.Logger("server").Sugar().Infof("listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger("server").Sugar().Fatalf("server stopped unexpectedly: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	manager.Stop(shutdownCtx, wshub.CloseArgs{Code: 1001, Payload: "server shutting down"}, true, true)
	_ = srv.Shutdown(shutdownCtx)
}

// registerPath is the owning goroutine for manager.Add: it recovers a
// panicked ErrInsertRace, logs it at Fatal (which exits the process),
// and re-panics on anything else so unrelated bugs still surface with
// their original stack trace instead of being swallowed here.
func registerPath(app *application.Application, manager *wshub.Manager, path string, factory wshub.BehaviorFactory) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok && errors.Is(err, wshub.ErrInsertRace) {
				app.Logger("server").Sugar().Fatalf("registering path %s: %v", path, err)
			}
			panic(r)
		}
	}()
	manager.Add(path, factory)
}
