package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"remote_imaging/internal/backend"
	"remote_imaging/internal/handlers"
	"remote_imaging/internal/logger"
	"remote_imaging/internal/repository"
	"remote_imaging/internal/repository/db"
	"remote_imaging/internal/server"
	"remote_imaging/internal/service"

	"github.com/spf13/viper"
)

const shutdownGrace = 10 * time.Second

func main() {
	// load config.yml first so the log level comes from configuration
	if err := loadConfig(); err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(viper.GetString("log.level"))

	// open audit DB
	sq, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sq.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(sq, viper.GetString("settings.dir"))
	link := backend.NewLink(backend.Config{
		Host:    viper.GetString("backend.host"),
		Port:    viper.GetInt("backend.port"),
		Timeout: viper.GetDuration("backend.timeout"),
	}, log)
	services := service.NewService(repos, link, service.Config{
		StorageBucket:   viper.GetString("storage.bucket"),
		StorageBasePath: viper.GetString("storage.base_path"),
	}, log)
	apiHandler := handlers.NewHandler(services, log)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(srv, services, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	viper.SetDefault("port", "8000")
	viper.SetDefault("backend.host", "localhost")
	viper.SetDefault("backend.port", 5555)
	viper.SetDefault("backend.timeout", "20s")
	viper.SetDefault("storage.bucket", "hugin-images")
	viper.SetDefault("storage.base_path", "images")
	viper.SetDefault("settings.dir", "configs/settings")
	viper.SetDefault("log.level", logger.InfoLevel)
	return viper.ReadInConfig()
}

// openDB initializes the SQLite audit database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "gateway.db")
		dbPath = "gateway.db"
	}
	return db.InitDB(dbPath)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8000"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals, stops background work and
// stops the HTTP server.
func waitForShutdown(srv *server.Server, services *service.Service, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	// cancel outstanding trigger processors and heartbeat loops first
	if err := services.Gateway.Shutdown(ctx); err != nil {
		log.Errorw("gateway shutdown failed", "err", err)
	}

	// allow in-flight requests to complete
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
