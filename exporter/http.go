package exporter

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/devopsext/greeter/common"
	"github.com/devopsext/greeter/provider"
	"github.com/devopsext/utils"
)

type HTTPOptions struct {
	URL    string
	Listen string
}

// HTTPServer exposes the exporter's last published text for scrapers that
// prefer pulling over reading the file.
type HTTPServer struct {
	options  HTTPOptions
	handler  http.Handler
	logger   common.Logger
	mu       sync.Mutex
	server   *http.Server
	stopped  bool
	listener net.Listener
}

func (hs *HTTPServer) Start() bool {

	hs.logger.Info("Start exporter endpoint...")

	listener, err := net.Listen("tcp", hs.options.Listen)
	if err != nil {
		hs.logger.Error(err)
		return false
	}

	mux := http.NewServeMux()
	mux.Handle(hs.options.URL, hs.handler)

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	hs.mu.Lock()
	if hs.stopped {
		hs.mu.Unlock()
		listener.Close()
		return false
	}
	hs.listener = listener
	hs.server = server
	hs.mu.Unlock()

	hs.logger.Info("Exporter endpoint is up. Listening on %s...", listener.Addr().String())
	err = server.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		hs.logger.Error(err)
		return false
	}
	return true
}

func (hs *HTTPServer) StartInWaitGroup(wg *sync.WaitGroup) {

	wg.Add(1)

	go func(wg *sync.WaitGroup) {

		defer wg.Done()
		hs.Start()
	}(wg)
}

func (hs *HTTPServer) Addr() net.Addr {

	hs.mu.Lock()
	defer hs.mu.Unlock()

	if hs.listener == nil {
		return nil
	}
	return hs.listener.Addr()
}

func (hs *HTTPServer) Stop() {

	hs.mu.Lock()
	hs.stopped = true
	server := hs.server
	hs.mu.Unlock()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}
}

func NewHTTPServer(options HTTPOptions, handler http.Handler, logger common.Logger, stdout *provider.Stdout) *HTTPServer {

	if logger == nil {
		logger = stdout
	}

	if utils.IsEmpty(options.Listen) {
		stdout.Debug("Exporter endpoint is disabled.")
		return nil
	}

	if utils.IsEmpty(options.URL) {
		options.URL = "/metrics"
	}

	return &HTTPServer{
		options: options,
		handler: handler,
		logger:  logger,
	}
}
