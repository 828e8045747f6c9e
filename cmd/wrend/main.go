// wrend: the Wren cloud bridge daemon.
// Accepts WebSocket sessions from Wren pocket speakers and bridges them to
// realtime voice providers.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wrenlabs/go-wren/internal/config"
	"github.com/wrenlabs/go-wren/internal/log"
	"github.com/wrenlabs/go-wren/pkg/bridge"
	"github.com/wrenlabs/go-wren/pkg/directory"
	"github.com/wrenlabs/go-wren/pkg/provider"
	"github.com/wrenlabs/go-wren/pkg/registry"
	"github.com/wrenlabs/go-wren/pkg/web"
)

var version = "1.0.0"

func main() {
	cfg := config.Load()
	log.Init(cfg.LogLevel)

	log.Info("wrend starting", "version", version, "addr", cfg.Addr, "providers", provider.Registered())

	dir := directory.NewHTTP(cfg.DirectoryURL)
	reg := registry.New()
	metrics := bridge.NewMetrics(prometheus.DefaultRegisterer)
	assets := bridge.NewDirAssetStore(cfg.AssetDir)

	orch := bridge.NewOrchestrator(dir, reg, assets, metrics, bridge.Config{
		Keys: bridge.ProviderKeys{
			OpenAI:            cfg.OpenAIKey,
			Gemini:            cfg.GeminiKey,
			ElevenLabs:        cfg.ElevenLabsKey,
			ElevenLabsAgentID: cfg.ElevenLabsAgentID,
			Qwen:              cfg.QwenKey,
		},
		UsageInterval: cfg.UsageInterval,
		ReadyTimeout:  cfg.ReadyTimeout,
	})

	srv := web.NewServer(cfg.Addr, orch, prometheus.DefaultGatherer)

	go func() {
		if err := srv.Listen(); err != nil {
			log.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	if err := srv.Shutdown(5 * time.Second); err != nil {
		log.Warn("shutdown incomplete", "error", err)
	}
	log.Info("goodbye")
}
