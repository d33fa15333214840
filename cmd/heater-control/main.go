// Command heater-control runs closed-loop temperature control for a four
// channel heater array. Sensor frames arrive on one byte stream and heater
// commands leave on another; control is armed from the shell or HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/sweeney/heater-control/internal/command"
	"github.com/sweeney/heater-control/internal/config"
	"github.com/sweeney/heater-control/internal/console"
	"github.com/sweeney/heater-control/internal/gpio"
	"github.com/sweeney/heater-control/internal/logging"
	"github.com/sweeney/heater-control/internal/loop"
	"github.com/sweeney/heater-control/internal/mqtt"
	"github.com/sweeney/heater-control/internal/shutdown"
	"github.com/sweeney/heater-control/internal/state"
	"github.com/sweeney/heater-control/internal/status"
	"github.com/sweeney/heater-control/internal/transport"
	"github.com/sweeney/heater-control/internal/web"
)

// flags holds command-line overrides. Empty values leave the config alone.
type flags struct {
	configPath string
	input      string
	output     string
	broker     string
	httpAddr   string
	logLevel   string
	enable     bool
	headless   bool
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "YAML config file")
	flag.StringVar(&f.input, "input", "", "sensor input pipe (overrides config)")
	flag.StringVar(&f.output, "output", "", "actuation output pipe (overrides config)")
	flag.StringVar(&f.broker, "broker", "", "MQTT broker address (overrides config)")
	flag.StringVar(&f.httpAddr, "http", "", "HTTP status address (overrides config)")
	flag.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flag.BoolVar(&f.enable, "enable", false, "arm control at startup")
	flag.BoolVar(&f.headless, "headless", false, "run without the interactive shell (implied when stdin is not a terminal)")
	flag.Parse()

	cfg, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "heater-control: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "heater-control: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	if err := run(cfg, f.headless, logger); err != nil {
		logger.Errorf("fatal: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}

// loadConfig layers defaults, the optional file, the environment and flags.
func loadConfig(f flags) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return cfg, err
		}
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return cfg, err
	}

	if f.input != "" {
		cfg.Input = transport.Endpoint{Kind: transport.KindPipe, Path: f.input}
	}
	if f.output != "" {
		cfg.Output = transport.Endpoint{Kind: transport.KindPipe, Path: f.output}
	}
	if f.broker != "" {
		cfg.MQTT.Broker = f.broker
	}
	if f.httpAddr != "" {
		cfg.HTTP.Addr = f.httpAddr
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.enable {
		cfg.Control.Enabled = true
	}
	return cfg, cfg.Validate()
}

// shellEnabled reports whether to run the operator shell. Without a terminal
// on stdin the shell would read EOF at once and end the daemon.
func shellEnabled(headless bool, stdin *os.File) bool {
	return !headless && console.Interactive(stdin)
}

func run(cfg config.Config, headless bool, logger *zap.SugaredLogger) error {
	opts, err := cfg.Control.StateOptions()
	if err != nil {
		return fmt.Errorf("control config: %w", err)
	}

	// Opening the output pipe blocks until the companion opens its end.
	logger.Infof("opening output %s", cfg.Output)
	link, err := transport.OpenLink(cfg.Input, cfg.Output, cfg.PollWindow)
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}
	defer link.Close()

	var interlock gpio.Interlock = gpio.Nop{}
	if cfg.Interlock.Line >= 0 {
		line, err := gpio.NewRealInterlock(cfg.Interlock.Chip, cfg.Interlock.Line, cfg.Interlock.ActiveLow)
		if err != nil {
			return fmt.Errorf("init interlock: %w", err)
		}
		interlock = line
	}
	defer interlock.Close()

	shared, err := state.New(opts, link.Sink(), interlock)
	if err != nil {
		return fmt.Errorf("init state: %w", err)
	}

	var publisher mqtt.Publisher = mqtt.Nop{}
	var conn mqtt.ConnectionStatus = mqtt.Nop{}
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, logger)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher, conn = p, p
	}
	defer publisher.Close()

	clk := clock.New()
	tracker := status.NewTracker(clk, status.Config{
		Input:       cfg.Input.String(),
		Output:      cfg.Output.String(),
		PollMs:      cfg.PollWindow.Milliseconds(),
		HeartbeatMs: cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
	})
	cmd := command.New(shared, publisher, clk, logger)

	d := &daemon{
		state:     shared,
		cmd:       cmd,
		tracker:   tracker,
		publisher: publisher,
		conn:      conn,
		clk:       clk,
		logger:    logger,
		loop: loop.New(loop.Deps{
			State:     shared,
			Open:      link.OpenSource,
			Tracker:   tracker,
			Publisher: publisher,
			Clock:     clk,
			Logger:    logger.Named("loop"),
		}),
		shutdown: shutdown.New(shutdown.Options{
			State:     shared,
			Publisher: publisher,
			Conn:      conn,
			Tracker:   tracker,
			Clock:     clk,
			Logger:    logger,
		}),
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go shutdown.WatchSignals(ctx, sigCh, cancel)

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, cmd, logger.Named("http"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warnf("http server error: %v", err)
			}
		}()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer scancel()
			srv.Shutdown(sctx)
		}()
		logger.Infof("http status server listening on %s", cfg.HTTP.Addr)
	}

	if shellEnabled(headless, os.Stdin) {
		con := console.New(cmd, logger)
		go func() { cancel(con.Run(ctx)) }()
	} else if !headless {
		logger.Infof("stdin is not a terminal, running without the shell")
	}

	var heartbeat <-chan time.Time
	if cfg.MQTT.Heartbeat > 0 {
		t := clk.Ticker(cfg.MQTT.Heartbeat)
		defer t.Stop()
		heartbeat = t.C
	}

	logger.Infof("started: input=%s output=%s mode=%s frequency=%gHz broker=%q",
		cfg.Input, cfg.Output, opts.Mode, opts.Frequency, cfg.MQTT.Broker)
	return d.run(ctx, cancel, cfg.Control.Enabled, heartbeat)
}
