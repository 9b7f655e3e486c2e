package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"alertengine/internal/clock"
	"alertengine/internal/compose"
	"alertengine/internal/config"
	"alertengine/internal/domain"
	"alertengine/internal/engine"
	"alertengine/internal/ingest"
	"alertengine/internal/ledger"
	"alertengine/internal/logging"
	"alertengine/internal/metrics"
	"alertengine/internal/mgmt"
	"alertengine/internal/notify"
	"alertengine/internal/rules"
	"alertengine/internal/schedule"
	"alertengine/internal/scorer"
)

// Service composes runtime dependencies and process lifecycle.
// Params: config snapshot and shared runtime components.
// Returns: runnable alerting engine service.
type Service struct {
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func()
	manager   *Manager
	sched     *schedule.Scheduler
	httpSrv   *http.Server
	natsSub   interface{ Close() error }
	readyFlag atomic.Bool
	clock     clock.Clock
}

// NewService builds the service instance from a config source.
// Params: config source and clock implementation.
// Returns: initialized service or setup error.
func NewService(source config.Source, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector()
	sched := schedule.New(clk, logger)
	eventLedger := ledger.New(clk.Now)

	ruleStore := rules.NewStore()
	if cfg.Service.SeedDefaultRules() {
		for _, rule := range rules.Defaults() {
			if err := ruleStore.Upsert(rule); err != nil {
				sched.Stop()
				closeLog()
				return nil, fmt.Errorf("install default rule: %w", err)
			}
		}
	}
	configured, err := cfg.DomainRules()
	if err != nil {
		sched.Stop()
		closeLog()
		return nil, err
	}
	for _, rule := range configured {
		if err := ruleStore.Upsert(rule); err != nil {
			sched.Stop()
			closeLog()
			return nil, err
		}
	}

	var confidence engine.ConfidenceScorer
	if cfg.Scorer.Enabled {
		confidence = scorer.NewHTTPScorer(cfg.Scorer.URL, cfg.Scorer.TimeoutSec, cfg.Scorer.Headers, logger)
	}
	eval := engine.NewEvaluator(confidence, logger)
	factory := compose.NewFactory(logger)

	dispatcher := notify.NewDispatcher(sched, eventLedger, logger, collector)
	dispatcher.SetRetryBackoff(
		time.Duration(cfg.Notify.FirstRetrySec)*time.Second,
		time.Duration(cfg.Notify.NextRetrySec)*time.Second,
	)
	registerSenders(dispatcher, cfg.Notify, logger)

	manager := NewManager(ruleStore, eventLedger, eval, factory, dispatcher, sched, collector, clk, logger)

	service := &Service{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		manager:  manager,
		sched:    sched,
		clock:    clk,
	}
	service.buildHTTPServer(collector)

	if cfg.Ingest.NATS.Enabled {
		sub, err := ingest.NewNATSSubscriber(cfg.Ingest.NATS, manager, logger)
		if err != nil {
			service.cleanupInitResources()
			return nil, err
		}
		service.natsSub = sub
	}

	return service, nil
}

// registerSenders installs configured channel transports plus logging
// senders for every remaining channel kind.
// Params: dispatcher, notify config, and logger.
// Returns: nothing.
func registerSenders(dispatcher *notify.Dispatcher, cfg config.NotifyConfig, logger *slog.Logger) {
	if cfg.Webhook.Enabled {
		dispatcher.Register(notify.NewWebhookSender(cfg.Webhook.URL, cfg.Webhook.TimeoutSec, cfg.Webhook.Headers))
	}
	if cfg.Chat.Enabled {
		dispatcher.Register(notify.NewChatSender(cfg.Chat.BotToken, cfg.Chat.ChatID, cfg.Chat.APIBase))
	}
	for _, channel := range []domain.Channel{
		domain.ChannelEmail, domain.ChannelSMS, domain.ChannelChat,
		domain.ChannelTeamsChat, domain.ChannelWebhook, domain.ChannelInApp,
		domain.ChannelPush, domain.ChannelVoiceCall,
	} {
		if !dispatcher.HasSender(channel) {
			dispatcher.Register(notify.NewLogSender(channel, logger))
		}
	}
}

// Manager exposes the engine authority, mainly for embedding callers.
// Params: none.
// Returns: engine manager.
func (s *Service) Manager() *Manager {
	return s.manager
}

// Run starts the service lifecycle and blocks until a shutdown signal.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	shutdownCtx, shutdownCancel := context.WithCancel(ctx)
	defer shutdownCancel()

	errChan := make(chan error, 1)
	if s.httpSrv != nil {
		go func() {
			s.logger.Info("http server starting", "listen", s.cfg.Ingest.HTTP.Listen)
			err := s.httpSrv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	retention := time.Duration(s.cfg.Service.RetentionHours) * time.Hour
	compactTicker := time.NewTicker(time.Duration(s.cfg.Service.CompactIntervalMin) * time.Minute)
	defer compactTicker.Stop()
	go func() {
		for {
			select {
			case <-shutdownCtx.Done():
				return
			case <-compactTicker.C:
				s.manager.Compact(retention)
			}
		}
	}()

	s.readyFlag.Store(true)
	s.logger.Info("alert engine started",
		"service", s.cfg.Service.Name, "rules", len(s.manager.ListRules()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
		return s.shutdown()
	}
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.natsSub != nil {
		if err := s.natsSub.Close(); err != nil {
			s.logger.Error("nats subscriber close failed", "error", err.Error())
			markErr(fmt.Errorf("nats subscriber close: %w", err))
		}
	}
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("http shutdown failed", "error", err.Error())
			markErr(fmt.Errorf("http shutdown: %w", err))
		}
	}
	s.sched.Stop()
	s.logger.Info("alert engine stopped")
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.natsSub != nil {
		_ = s.natsSub.Close()
		s.natsSub = nil
	}
	if s.httpSrv != nil {
		_ = s.httpSrv.Close()
		s.httpSrv = nil
	}
	if s.sched != nil {
		s.sched.Stop()
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildHTTPServer wires the router with ingest, management, health, and metrics endpoints.
// Params: metrics collector.
// Returns: nothing; no server is built when HTTP intake is disabled.
func (s *Service) buildHTTPServer(collector *metrics.Collector) {
	if !s.cfg.Ingest.HTTP.Enabled {
		return
	}

	httpCfg := s.cfg.Ingest.HTTP
	mux := http.NewServeMux()
	mux.HandleFunc(httpCfg.HealthPath, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})
	mux.HandleFunc(httpCfg.ReadyPath, func(writer http.ResponseWriter, _ *http.Request) {
		if !s.readyFlag.Load() {
			writer.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writer.WriteHeader(http.StatusOK)
	})
	mux.Handle(httpCfg.IngestPath, ingest.NewHTTPHandler(s.manager, httpCfg.MaxBodyBytes, s.logger))
	mux.Handle("/metrics", collector.Handler())
	mgmt.NewHandler(s.manager, httpCfg.MaxBodyBytes, s.logger).Register(mux)

	s.httpSrv = &http.Server{
		Addr:              httpCfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
