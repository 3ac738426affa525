package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-voiceturn/internal/log"
	"github.com/teslashibe/go-voiceturn/pkg/capture"
	"github.com/teslashibe/go-voiceturn/pkg/voice"
	"github.com/teslashibe/go-voiceturn/pkg/web"
)

// ServeCmd starts the HTTP server.
// Usage: voiceturn serve -f config.yaml --listen :8080
type ServeCmd struct {
	Listen string `short:"l" long:"listen" description:"listen address (overrides config)"`
}

func (s *ServeCmd) Execute(_ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if s.Listen != "" {
		cfg.Listen = s.Listen
	}
	logger := log.Component("voiceturn")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := build(ctx, cfg, log.L())
	if err != nil {
		return err
	}
	defer rt.Close()

	// The server and bridge are wired into the pipeline's callbacks before
	// they exist; nothing fires until the server is listening.
	var (
		p   *voice.Pipeline
		srv *web.Server
	)
	spool := capture.Spool{Dir: cfg.Capture.SpoolDir}
	if err := spool.Prepare(); err != nil {
		return err
	}
	bridge := capture.NewBridge(capture.SubmitFunc(func(ctx context.Context, u voice.Utterance) (string, error) {
		return p.Submit(ctx, u)
	}), capture.WithSpool(spool), capture.WithLogger(log.L()))

	events := voice.EventCallbacks(func(e voice.Event) { srv.Publish(e) })
	p, err = rt.pipeline(cfg, events.Merge(bridge.Callbacks()), log.L())
	if err != nil {
		return err
	}
	p.Metrics().OnTurn(func(m voice.Metrics) {
		logger.Info("turn latency", "turn_id", m.TurnID, "outcome", m.Outcome, "latency", m.FormatLatency())
	})

	srv = web.NewServer(cfg.Listen, p,
		web.WithCapture(bridge),
		web.WithSpool(spool),
		web.WithMetricsHandler(rt.prom.Handler()),
		web.WithHealthCheck("transcription", rt.stt.Health),
		web.WithHealthCheck("generation", rt.llm.Health),
		web.WithHealthCheck("synthesis", rt.tts.Health),
		web.WithLogger(log.L()),
	)

	logger.Info("voiceturn ready",
		"listen", cfg.Listen,
		"context_mode", cfg.Generation.ContextMode,
		"model", cfg.Generation.Model,
		"silence_timeout", cfg.Conversation.SilenceTimeout,
	)

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	return srv.Shutdown()
}
