package commands

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/marmos91/sbrokerd/internal/broker"
	sbconfig "github.com/marmos91/sbrokerd/internal/config"
	"github.com/marmos91/sbrokerd/internal/filelock"
	"github.com/marmos91/sbrokerd/internal/logger"
	"github.com/marmos91/sbrokerd/internal/metrics"
	"github.com/marmos91/sbrokerd/internal/party"
	"github.com/marmos91/sbrokerd/internal/statuspage"
	"github.com/marmos91/sbrokerd/internal/telemetry"
	"github.com/spf13/cobra"
)

var flags *sbconfig.Flags

func init() {
	flags = sbconfig.BindFlags(rootCmd, appViper)
}

func runStart(cmd *cobra.Command, args []string) error {
	if err := flags.Validate(); err != nil {
		return err
	}

	logLevel := "INFO"
	if flags.Verbosity > 0 {
		logLevel = "DEBUG"
	}
	logOutput := "stderr"
	if flags.Foreground && !flags.EchoConsole {
		logOutput = "stdout"
	}
	if err := logger.Init(logger.Config{Level: logLevel, Format: "text", Output: logOutput}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetVerbosity(flags.Verbosity)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        flags.TelemetryEnabled,
		ServiceName:    "sbrokerd",
		ServiceVersion: Version,
		Endpoint:       flags.TelemetryEndpoint,
		Insecure:       true,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	lock, err := filelock.Acquire(flags.SocketPath() + ".lck")
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Error("release instance lock failed", logger.Err(err))
		}
	}()

	serviceFile, err := sbconfig.LoadServiceFile(flags.ConfigFile)
	if err != nil {
		return fmt.Errorf("load service file: %w", err)
	}

	m, metricsHandler := metrics.New()

	cfg := buildBrokerConfig(flags, serviceFile, m)
	b := broker.New(cfg)

	if flags.ConfigFile != "" {
		go func() {
			if err := sbconfig.Watch(ctx, flags.ConfigFile, func(sf *sbconfig.ServiceFile) {
				logger.Info("service file reloaded", "path", flags.ConfigFile)
				b.Reload(sf.Local, sf.Forward, sf.ForwardAll)
			}); err != nil {
				logger.Warn("service file watch failed", logger.Err(err))
			}
		}()
	}

	serverDone := make(chan error, 1)
	go func() { serverDone <- b.Serve(ctx) }()

	status := statuspage.NewServer(statuspage.Config{Port: flags.HTTPPort, MetricsHandler: metricsHandler}, b)
	statusDone := make(chan error, 1)
	go func() { statusDone <- status.Start(ctx) }()

	logger.Info("sbrokerd running",
		"socket", cfg.UnixSocketPath,
		"tree_mode", cfg.TreeMode,
		"status_port", flags.HTTPPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received")
		cancel()
		b.Stop()
		if err := <-serverDone; err != nil {
			logger.Error("broker shutdown error", logger.Err(err))
		}
		<-statusDone
	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("broker exited with error", logger.Err(err))
			return err
		}
	case err := <-statusDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("status page exited with error", logger.Err(err))
			return err
		}
	}

	return nil
}

// buildBrokerConfig translates the CLI/environment flag surface and
// the loaded service file into a broker.Config.
func buildBrokerConfig(f *sbconfig.Flags, sf *sbconfig.ServiceFile, m *metrics.Metrics) broker.Config {
	cfg := broker.Config{
		UnixSocketPath: f.SocketPath(),
		ExtendedID:     partyExtendedID(f),
		MasterAddress:  f.MasterAddr,
		Local:          sf.Local,
		Forward:        sf.Forward,
		ForwardAll:     sf.ForwardAll,
		TreeMode:       f.TreeMode(),
		CacheEnabled:   f.CacheEnabled,
		AsyncAttach:    f.AsyncAttach,
		Metrics:        m,
	}

	if f.EnableTCPMaster {
		bindIP := "0.0.0.0"
		if len(f.BindIPs) > 0 {
			bindIP = f.BindIPs[0]
		}
		cfg.MasterListenAddr = net.JoinHostPort(bindIP, strconv.Itoa(f.MasterPort))
		cfg.SlaveListenAddr = net.JoinHostPort(bindIP, strconv.Itoa(f.SlavePort))
	}

	return cfg
}

func partyExtendedID(f *sbconfig.Flags) uint32 {
	if f.TreeMode() {
		return f.ExtendedID
	}
	return party.ExtendedIDSlave
}
