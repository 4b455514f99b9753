package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielkbx/multi-storage/api/filehandler"
	"github.com/danielkbx/multi-storage/api/server"
	"github.com/danielkbx/multi-storage/cmd/flags"
	"github.com/danielkbx/multi-storage/common"
	"github.com/danielkbx/multi-storage/discovery"
	"github.com/danielkbx/multi-storage/metrics"
	"github.com/danielkbx/multi-storage/storage"
	"github.com/urfave/cli/v2"
)

var flagListenAddr = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}
var flagProvider = &cli.StringSliceFlag{
	Name:    "provider",
	Usage:   "provider location URI, may be repeated (e.g. mem://, file:///var/lib/storage?priority=5, s3://bucket/prefix?region=eu-west-1)",
	EnvVars: []string{"MULTISTORAGE_PROVIDERS"},
}
var flagProvidersFile = &cli.StringFlag{
	Name:  "providers-file",
	Usage: "YAML file listing provider locations",
}
var flagProvidersDNS = &cli.StringFlag{
	Name:  "providers-dns",
	Usage: "domain whose TXT records list provider locations",
}
var flagDNSServer = &cli.StringFlag{
	Name:  "dns-server",
	Value: discovery.DefaultServer,
	Usage: "DNS server used for --providers-dns",
}
var flagRollback = &cli.BoolFlag{
	Name:  "rollback-partial-writes",
	Value: false,
	Usage: "delete content from succeeded providers when a write or streamed upload fails on others",
}
var flagSinkQueueSize = &cli.IntFlag{
	Name:  "sink-queue-size",
	Value: 16,
	Usage: "chunks buffered per provider during streamed uploads",
}
var flagTLSCert = &cli.StringFlag{
	Name:  "tls-cert",
	Usage: "client certificate presented to vault providers",
}
var flagTLSKey = &cli.StringFlag{
	Name:  "tls-key",
	Usage: "private key of --tls-cert",
}

func main() {
	app := &cli.App{
		Name:  "storage-server",
		Usage: "Serve content stored across multiple storage providers",
		Flags: append([]cli.Flag{
			flagListenAddr,
			flagProvider,
			flagProvidersFile,
			flagProvidersDNS,
			flagDNSServer,
			flagRollback,
			flagSinkQueueSize,
			flagTLSCert,
			flagTLSKey,
			flags.LogServiceFlagFn("storage-server"),
		}, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			locations, err := collectLocations(cCtx, logger)
			if err != nil {
				logger.Error("Failed to collect provider locations", "err", err)
				return err
			}

			factory := storage.NewProviderFactory(logger)
			if certFile := cCtx.String(flagTLSCert.Name); certFile != "" {
				cert, err := tls.LoadX509KeyPair(certFile, cCtx.String(flagTLSKey.Name))
				if err != nil {
					logger.Error("Failed to load client certificate", "err", err)
					return err
				}
				factory = factory.WithTLSAuth(cert)
			}

			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flagListenAddr.Name))

			metricsSrv, err := metricsServer(cfg.MetricsAddr)
			if err != nil {
				logger.Error("Failed to create metrics server", "err", err)
				return err
			}

			storageCfg := &storage.Config{
				Log:                   logger,
				RollbackPartialWrites: cCtx.Bool(flagRollback.Name),
				SinkQueueSize:         cCtx.Int(flagSinkQueueSize.Name),
			}
			if metricsSrv != nil {
				storageCfg.Metrics = metricsSrv.Recorder()
			}

			ms, err := factory.CreateMultiStorage(locations, storageCfg)
			if err != nil {
				logger.Error("Failed to create storage", "err", err)
				return err
			}
			for _, entry := range ms.Providers() {
				logger.Info("Provider ready", "name", entry.Name(), "priority", entry.Priority, "schemes", entry.Schemes())
			}

			srv, err := server.New(cfg, metricsSrv, filehandler.NewHandler(ms, logger))
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server")
			srv.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			srv.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func metricsServer(addr string) (*metrics.MetricsServer, error) {
	if addr == "" {
		return nil, nil
	}
	return metrics.New(common.PackageName, addr)
}

// collectLocations merges the locations given on the command line, in the
// providers file and in DNS, in that order.
func collectLocations(cCtx *cli.Context, logger *slog.Logger) ([]storage.Location, error) {
	var locations []storage.Location
	for _, uri := range cCtx.StringSlice(flagProvider.Name) {
		locations = append(locations, storage.Location{URI: uri})
	}

	if path := cCtx.String(flagProvidersFile.Name); path != "" {
		fromFile, err := storage.LoadLocationsFile(path)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded provider locations", "file", path, "count", len(fromFile))
		locations = append(locations, fromFile...)
	}

	if domain := cCtx.String(flagProvidersDNS.Name); domain != "" {
		ctx, cancel := context.WithTimeout(cCtx.Context, 10*time.Second)
		defer cancel()

		resolver := discovery.NewResolver(cCtx.String(flagDNSServer.Name), logger)
		fromDNS, err := resolver.Locations(ctx, domain)
		if err != nil {
			return nil, err
		}
		logger.Info("Resolved provider locations", "domain", domain, "count", len(fromDNS))
		locations = append(locations, fromDNS...)
	}

	if len(locations) == 0 {
		return nil, errors.New("no provider locations configured")
	}
	return locations, nil
}
