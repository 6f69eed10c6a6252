package greeter

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/devopsext/greeter/common"
	"github.com/devopsext/greeter/provider"
	"github.com/devopsext/utils"
	"google.golang.org/grpc"
)

const DefaultListen = "0.0.0.0:50051"

type ServerOptions struct {
	Listen string
}

type Server struct {
	options  ServerOptions
	recorder *Recorder
	logger   common.Logger
	server   *grpc.Server
	mu       sync.Mutex
	listener net.Listener
}

// interceptor records every completed unary call, failed ones included.
func (s *Server) interceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	start := time.Now()
	resp, err := handler(ctx, req)
	s.recorder.Since(start)

	if err != nil {
		s.logger.Debug("%s failed: %v", info.FullMethod, err)
	}
	return resp, err
}

// Serve blocks answering calls on listener until Stop.
func (s *Server) Serve(listener net.Listener) error {

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("gRPC server listening on %s", listener.Addr().String())
	return s.server.Serve(listener)
}

func (s *Server) Start() bool {

	listener, err := net.Listen("tcp", s.options.Listen)
	if err != nil {
		s.logger.Error(err)
		return false
	}

	if err := s.Serve(listener); err != nil {
		s.logger.Error(err)
		return false
	}
	return true
}

func (s *Server) StartInWaitGroup(wg *sync.WaitGroup) {

	wg.Add(1)

	go func(wg *sync.WaitGroup) {

		defer wg.Done()
		s.Start()
	}(wg)
}

func (s *Server) Addr() net.Addr {

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop waits for in-flight calls to finish.
func (s *Server) Stop() {

	s.logger.Info("gRPC server is stopping...")
	s.server.GracefulStop()
}

func NewServer(options ServerOptions, recorder *Recorder, logger common.Logger, stdout *provider.Stdout) *Server {

	if logger == nil {
		logger = stdout
	}

	if recorder == nil {
		stdout.Error("gRPC server has no recorder.")
		return nil
	}

	if utils.IsEmpty(options.Listen) {
		options.Listen = DefaultListen
	}

	s := &Server{
		options:  options,
		recorder: recorder,
		logger:   logger,
	}

	s.server = grpc.NewServer(grpc.UnaryInterceptor(s.interceptor))
	s.server.RegisterService(&ServiceDesc, &Service{})
	return s
}
