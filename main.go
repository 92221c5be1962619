package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.bug.st/serial"

	"i4.energy/across/gsmppp/modem"
)

func main() {
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the modem")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("operator", "", "Manual MCC/MNC operator code (empty for automatic)")
	flag.String("apn", "", "Fixed access point name (empty for automatic)")
	flag.String("apn-file", "", "YAML file with APN table overrides")
	flag.Int("volume", 0, "Call audio level (0-5)")
	flag.String("ppp-device", "", "Device for pppd (defaults to the serial port)")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	apns := modem.DefaultAPNTable()
	if config.APNFile != "" {
		apns, err = modem.LoadAPNFile(config.APNFile)
		if err != nil {
			logger.Error("Failed to load APN file", "error", err, "file", config.APNFile)
			os.Exit(1)
		}
	}

	modemConfig, err := modem.NewConfigBuilder().
		WithDialer(modem.SerialDialer{
			PortName: config.SerialPort,
			Mode:     &serial.Mode{BaudRate: config.BaudRate},
		}).
		WithPPP(&modem.PppdDriver{
			Device: config.PPPDevice,
			Speed:  config.BaudRate,
			Logger: logger.With("component", "pppd"),
		}).
		WithOperator(config.Operator).
		WithAPN(config.APN).
		WithAPNTable(apns).
		WithVolume(config.Volume).
		WithLogger(logger).
		Build()
	if err != nil {
		logger.Error("Failed to create modem config", "error", err)
		os.Exit(1)
	}

	m, err := modem.New(modemConfig)
	if err != nil {
		logger.Error("Failed to create modem", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting modem bring-up", "port", config.SerialPort)
	if err := m.Start(); err != nil {
		logger.Error("Failed to start modem", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger: logger.With("component", "server"),
			Modem:  m,
		},
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig)

	logger.Info("Closing modem connection")
	if err := m.Close(); err != nil {
		logger.Error("Failed to close modem", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
		os.Exit(1)
	}
}
