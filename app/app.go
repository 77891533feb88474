// Package app wires the configuration, the I/O service and the HTTP layer
// into a runnable server.
package app

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/searchktools/reactor-server/config"
	"github.com/searchktools/reactor-server/core/filecache"
	"github.com/searchktools/reactor-server/core/http"
	"github.com/searchktools/reactor-server/core/logging"
	"github.com/searchktools/reactor-server/core/service"
)

// App is one server instance.
type App struct {
	cfg   *config.Config
	svc   *service.IOService
	httpd *http.HTTPService
	cache *filecache.FileCache
}

// New builds the serving machinery from cfg.
func New(cfg *config.Config) (*App, error) {
	if err := logging.Setup(cfg.LogFile); err != nil {
		return nil, err
	}

	if cfg.DocRoot != "" && cfg.DocRoot != "." {
		if err := os.Chdir(cfg.DocRoot); err != nil {
			return nil, err
		}
	}

	svc, err := service.New(cfg.Workers)
	if err != nil {
		return nil, err
	}

	cache := filecache.New(cfg.CacheSize)

	return &App{
		cfg:   cfg,
		svc:   svc,
		httpd: http.NewHTTPService(cfg.Port, svc, cache),
		cache: cache,
	}, nil
}

// HTTP returns the HTTP layer, mainly so callers can form client
// connections against other servers.
func (a *App) HTTP() *http.HTTPService { return a.httpd }

// Run serves until a 'quit' request or a termination signal stops the
// service.
func (a *App) Run() {
	go a.awaitSignal()

	logrus.Infof("serving on port %d with %d workers", a.cfg.Port, a.cfg.Workers)
	a.svc.Start()
	logrus.Infof("server stopped")
}

func (a *App) awaitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	logrus.Infof("signal received: %v, shutting down", sig)
	a.svc.Stop()
}
