package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgrender "github.com/rmolchanov/go-tgrender"
	"github.com/rmolchanov/go-tgrender/internal/httpadmin"
	"github.com/rmolchanov/go-tgrender/internal/sqlitestore"
)

// shutdownGrace bounds how long in-flight admin requests may run after a
// termination signal.
const shutdownGrace = 10 * time.Second

// runServeCmd runs the admin/health server until interrupted.
func runServeCmd(args []string) int {
	flags, err := parseServeFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	log := newLogger(flags.common)

	cfg, err := loadConfig(flags.common.config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}

	addr := flags.addr
	if cfg.Admin.Addr != "" {
		addr = cfg.Admin.Addr
	}
	token := flags.token
	if token == "" {
		token = cfg.Admin.Token
	}

	opts := []tgrender.Option{tgrender.WithLogger(log)}
	cachePath := cfg.Cache.Path
	if flags.cache != "" {
		cachePath = flags.cache
	}
	var store *sqlitestore.Store
	if cachePath != "" {
		store, err = sqlitestore.Open(cachePath)
		if err != nil {
			log.Warn("durable cache unavailable", "path", cachePath, "error", err)
		} else {
			defer store.Close()
			opts = append(opts, tgrender.WithStore(store))
		}
	}

	svc := tgrender.New(opts...)
	defer svc.Close()

	srv := httpadmin.New(addr, svc, token, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return ExitGeneral
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return ExitGeneral
		}
	}
	return ExitSuccess
}
