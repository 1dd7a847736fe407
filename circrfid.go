package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"circrfid/api"
	"circrfid/button"
	"circrfid/engine"
	"circrfid/eventpipe"
	"circrfid/host"
	"circrfid/indicator"
	"circrfid/kv"
	"circrfid/logging"
	"circrfid/mqtt"
	"circrfid/poller"
	"circrfid/queue"
	"circrfid/reader"
	"circrfid/workflow"
)

var myBuild string

const noReaderMessage = "No RFID reader found"

// App holds the application state and dependencies.
type App struct {
	cfg       *Config
	log       *zap.Logger
	store     kv.Store
	mqtt      *mqtt.Client
	bridge    *host.MQTT
	vendor    reader.Vendor
	poller    *poller.Poller
	engine    *engine.Engine
	indicator indicator.Indicator
	buttons   *button.Buttons
	pipe      *eventpipe.EventPipe
	signals   chan host.Signal
	ctx       context.Context
	cancel    context.CancelFunc
}

func main() {
	fmt.Printf("circrfid build %s\n", myBuild)

	cfgfile := flag.String("cfg", "circrfid.cfg", "Config file")
	flag.Parse()

	f, err := os.Open(*cfgfile)
	if err != nil {
		log.Fatalf("Open config: %v", err)
	}
	cfg, err := loadConfig(f)
	f.Close()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Init logging: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		cfg:     cfg,
		log:     logger,
		signals: make(chan host.Signal, 16),
		ctx:     ctx,
		cancel:  cancel,
	}

	app.indicator, err = indicator.New(cfg.Indicator, logger)
	if err != nil {
		logger.Fatal("init indicator", zap.Error(err))
	}
	app.indicator.ReaderLost() // until a reader answers

	app.store, err = kv.New(cfg.Store)
	if err != nil {
		logger.Fatal("init store", zap.Error(err))
	}
	cfg.ClientID, err = stationID(ctx, app.store, cfg.ClientID)
	if err != nil {
		logger.Fatal("station id", zap.Error(err))
	}
	logger.Info("station ready", zap.String("client_id", cfg.ClientID), zap.String("signal_topic", host.SignalTopic(cfg.ClientID)))

	app.mqtt, err = mqtt.New(cfg.MQTT, cfg.ClientID, mqtt.Handlers{
		OnConnect:    app.onMQTTConnect,
		OnDisconnect: app.onMQTTDisconnect,
		OnMessage:    app.onMQTTMessage,
	}, logger)
	if err != nil {
		logger.Fatal("init mqtt", zap.Error(err))
	}
	app.bridge = host.NewMQTT(app.mqtt, cfg.ClientID, logger)

	candidates, err := reader.Candidates(cfg.Reader, logger.Named("reader"))
	if err != nil {
		logger.Fatal("init reader", zap.Error(err))
	}
	app.vendor, err = reader.Select(ctx, candidates, cfg.Reader.ProbeTimeout, logger.Named("reader"))
	switch {
	case errors.Is(err, reader.ErrNoReaderFound):
		logger.Error("no rfid reader found; page actions stay idle")
	case err != nil:
		logger.Fatal("select reader", zap.Error(err))
	default:
		app.indicator.Idle()
	}

	app.engine = app.buildEngine()

	app.buttons, err = button.New(cfg.Buttons, button.Handlers{
		OnContinue: func() { app.post(host.Signal{Type: host.SignalContinue}) },
		OnReset:    func() { app.post(host.Signal{Type: host.SignalReset}) },
	})
	if err != nil {
		logger.Fatal("init buttons", zap.Error(err))
	}

	app.pipe, err = eventpipe.New(cfg.EventPipe, app.post, logger)
	if err != nil {
		logger.Fatal("init event pipe", zap.Error(err))
	}

	go func() {
		if err := app.mqtt.Connect(); err != nil {
			logger.Warn("mqtt connect", zap.Error(err))
		}
	}()
	go app.forwardBridge()
	go func() {
		if err := app.engine.Run(ctx, app.signals); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("engine stopped", zap.Error(err))
		}
	}()
	if app.pipe != nil {
		go app.pipe.Start()
	}
	if cfg.API.Listen != "" {
		router := api.NewRouter(app.engine, api.ChannelSender(app.signals, 2*time.Second), logger)
		go func() {
			if err := api.Serve(ctx, cfg.API, router, logger); err != nil {
				logger.Error("control api stopped", zap.Error(err))
			}
		}()
	}
	go app.pingSender()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()

	app.mqtt.Disconnect()
	if app.pipe != nil {
		app.pipe.Close()
	}
	if app.buttons != nil {
		app.buttons.Release()
	}
	if app.poller != nil {
		app.poller.Stop()
	}
	if app.vendor != nil {
		app.vendor.Close()
	}
	app.store.Close()
	app.indicator.Shutdown()
	app.indicator.Release()

	logger.Info("shutdown complete")
}

// buildEngine wires the queue, poller and workflow for the selected vendor.
// Queue state is kept per vendor so switching hardware never mixes sessions.
func (app *App) buildEngine() *engine.Engine {
	namespace := "none"
	if app.vendor != nil {
		namespace = app.vendor.Name()
	}
	q := queue.New(app.store, namespace)

	var driver *workflow.Driver
	if app.vendor != nil {
		app.poller = poller.New(app.vendor, app.log)
		driver = workflow.New(app.cfg.Workflow, q, app.vendor, app.poller, app.bridge, app.log)
	}
	return engine.New(q, driver, app.bridge, app.indicator, app.log)
}

// post queues a signal for the engine without blocking hardware callbacks.
func (app *App) post(s host.Signal) {
	select {
	case app.signals <- s:
	default:
		app.log.Warn("signal dropped, engine busy", zap.String("type", string(s.Type)))
	}
}

func (app *App) forwardBridge() {
	for {
		select {
		case <-app.ctx.Done():
			return
		case s := <-app.bridge.Signals():
			select {
			case app.signals <- s:
			case <-app.ctx.Done():
				return
			}
		}
	}
}

func (app *App) onMQTTConnect() {
	if err := app.mqtt.Subscribe(host.SignalTopic(app.cfg.ClientID)); err != nil {
		app.log.Warn("subscribe", zap.Error(err))
	}
	if app.vendor == nil {
		if err := app.bridge.Alert(app.ctx, noReaderMessage); err != nil {
			app.log.Warn("alert", zap.Error(err))
		}
	}
}

func (app *App) onMQTTDisconnect() {
	app.log.Warn("host bridge offline")
}

func (app *App) onMQTTMessage(topic string, payload []byte) {
	app.bridge.HandleMessage(topic, payload)
}

func (app *App) pingSender() {
	ticker := time.NewTicker(app.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			status := "ok"
			if app.vendor == nil {
				status = "no_reader"
			}
			payload := fmt.Sprintf(`{"status":%q}`, status)
			if err := app.mqtt.Publish(host.PingTopic(app.cfg.ClientID), payload); err != nil && !errors.Is(err, mqtt.ErrDisabled) {
				app.log.Debug("ping not sent", zap.Error(err))
			}
		}
	}
}
