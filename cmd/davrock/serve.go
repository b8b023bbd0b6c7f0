package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/davrock/davrock/auth"
	"github.com/davrock/davrock/config"
	"github.com/davrock/davrock/rights"
	"github.com/davrock/davrock/server"
	"github.com/davrock/davrock/storage/memory"
	"github.com/davrock/davrock/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the DAV server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default: :5232)")
	serveCmd.Flags().String("auth", "", "auth backend: none, denyall, static, remote_user")
	serveCmd.Flags().String("rights", "", "rights backend: none, authenticated, owner_write, owner_only")
	serveCmd.Flags().String("storage", "", "storage backend: memory")
	rootCmd.AddCommand(serveCmd)

	// WebDAV verbs are not part of chi's default method set.
	for _, method := range []string{
		"PROPFIND", "PROPPATCH", "REPORT", "MKCALENDAR", "MKCOL", "MOVE",
	} {
		chi.RegisterMethod(method)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configFiles, _ := cmd.Flags().GetStringSlice("config")
	flags := cmd.Flags()
	flags.AddFlagSet(cmd.Root().PersistentFlags())
	cfg, err := config.Load(configFiles, flags)
	if err != nil {
		return err
	}
	logger := setupLogging(cfg.Logging)

	authBackend, err := auth.New(cfg.Auth.Type, cfg.Auth.Users)
	if err != nil {
		return fmt.Errorf("auth backend: %w", err)
	}
	rightsBackend, err := rights.New(cfg.Rights.Type)
	if err != nil {
		return fmt.Errorf("rights backend: %w", err)
	}
	webBackend, err := web.New(cfg.Web.Type)
	if err != nil {
		return fmt.Errorf("web backend: %w", err)
	}
	store := memory.New(logger)

	app := server.New(cfg, store, authBackend, rightsBackend, webBackend, logger)

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	// Service discovery per RFC 6764; the core answers 404 for these.
	for _, known := range []string{"caldav", "carddav"} {
		router.Get("/.well-known/"+known,
			http.RedirectHandler("/", http.StatusMovedPermanently).ServeHTTP)
	}
	router.Handle("/*", app)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.RequestTimeout + 30*time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	}()

	logger.Info("starting server",
		"addr", cfg.Server.Addr,
		"auth", cfg.Auth.Type,
		"rights", cfg.Rights.Type,
		"storage", cfg.Storage.Type)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
