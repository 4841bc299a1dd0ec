package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rkv/internal/server"
)

func main() {
	cfg := server.DefaultConfig()
	var configFile string

	root := &cobra.Command{
		Use:   "rkv",
		Short: "A single-node, Redis-wire-protocol-compatible key-value server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				fileCfg := server.DefaultConfig()
				if err := loadConfigFile(configFile, fileCfg); err != nil {
					return err
				}
				f := cmd.Flags()
				if !f.Changed("host") {
					cfg.Host = fileCfg.Host
				}
				if !f.Changed("port") {
					cfg.Port = fileCfg.Port
				}
				if !f.Changed("dir") {
					cfg.Dir = fileCfg.Dir
				}
				if !f.Changed("dbfilename") {
					cfg.DBFilename = fileCfg.DBFilename
				}
				if !f.Changed("replicaof") {
					cfg.ReplicaOf = fileCfg.ReplicaOf
				}
			}
			return run(cfg)
		},
	}

	flags := root.Flags()
	flags.StringVar(&configFile, "config", "", "path to a JSON config file; flags below override its values")
	flags.StringVar(&cfg.Host, "host", cfg.Host, "address to bind")
	flags.IntVar(&cfg.Port, "port", cfg.Port, "TCP port to listen on")
	flags.StringVar(&cfg.Dir, "dir", cfg.Dir, "directory holding the RDB snapshot")
	flags.StringVar(&cfg.DBFilename, "dbfilename", cfg.DBFilename, "RDB snapshot filename")
	flags.StringVar(&cfg.ReplicaOf, "replicaof", cfg.ReplicaOf, "\"host port\" of a master to replicate from")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfigFile(path string, cfg *server.Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(cfg)
}

func run(cfg *server.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	zcfg := zap.NewDevelopmentConfig()
	logger, err := zcfg.Build()
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Sugar()

	srv, err := server.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		cancel()
		srv.Shutdown()
	}()

	log.Infow("starting server", "host", cfg.Host, "port", cfg.Port, "role", cfg.Role())
	return srv.Start(ctx)
}
