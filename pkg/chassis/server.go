// Package chassis serves the HTTP API over HTTP/3 (QUIC) next to the TCP
// listener, and advertises it to TCP clients with Alt-Svc.
//
// In development mode a self-signed ECDSA P-256 cert is generated
// automatically. In production, supply cert/key files via config.
package chassis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

const (
	DefaultIdleTimeout = 60 * time.Second
	DefaultKeepAlive   = 15 * time.Second
)

// Server is the HTTP/3 chassis.
type Server struct {
	addr     string
	logger   *slog.Logger
	tlsCfg   *tls.Config
	handler  http.Handler
	h3Server *http3.Server
	mu       sync.Mutex
	stopped  bool
}

// Config holds configuration for the chassis server.
type Config struct {
	Addr     string       // UDP listen address (e.g. ":8443")
	TLS      *tls.Config  // nil = load CertFile/KeyFile or self-sign
	CertFile string       // production cert path
	KeyFile  string       // production key path
	Handler  http.Handler // API handler
	Logger   *slog.Logger
}

func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Handler == nil {
		return nil, errors.New("chassis: nil handler")
	}

	tlsCfg := cfg.TLS
	if tlsCfg == nil {
		var err error
		if cfg.CertFile != "" && cfg.KeyFile != "" {
			tlsCfg, err = ProductionTLSConfig(cfg.CertFile, cfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("load TLS cert: %w", err)
			}
			cfg.Logger.Info("TLS: production certs loaded")
		} else {
			tlsCfg, err = DevelopmentTLSConfig()
			if err != nil {
				return nil, fmt.Errorf("generate dev TLS: %w", err)
			}
			cfg.Logger.Info("TLS: self-signed dev cert generated")
		}
	}

	s := &Server{
		addr:    cfg.Addr,
		logger:  cfg.Logger,
		tlsCfg:  tlsCfg,
		handler: cfg.Handler,
	}
	s.h3Server = &http3.Server{
		Addr:       s.addr,
		Handler:    s.handler,
		TLSConfig:  s.tlsCfg,
		QUICConfig: &quic.Config{
			MaxStreamReceiveWindow:     10 * 1024 * 1024,
			MaxConnectionReceiveWindow: 50 * 1024 * 1024,
			MaxIdleTimeout:             DefaultIdleTimeout,
			KeepAlivePeriod:            DefaultKeepAlive,
		},
	}
	return s, nil
}

// Start listens on the configured UDP address and blocks until Stop.
func (s *Server) Start(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return fmt.Errorf("HTTP/3 listen: %w", err)
	}
	return s.Serve(ctx, conn)
}

// Serve runs HTTP/3 on an existing packet conn.
func (s *Server) Serve(ctx context.Context, conn net.PacketConn) error {
	s.logger.Info("chassis started", "addr", conn.LocalAddr().String(), "http3", true)
	go func() {
		<-ctx.Done()
		_ = s.Stop(context.Background())
	}()
	if err := s.h3Server.Serve(conn); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, quic.ErrServerClosed) {
		return fmt.Errorf("HTTP/3: %w", err)
	}
	return nil
}

// AltSvc wraps a TCP handler so its responses advertise the HTTP/3 endpoint.
func (s *Server) AltSvc(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.h3Server.SetQUICHeaders(w.Header()); err != nil {
			s.logger.Debug("alt-svc header", "error", err)
		}
		next.ServeHTTP(w, r)
	})
}

// Stop closes the HTTP/3 listener.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	err := s.h3Server.Close()
	s.logger.Info("chassis stopped")
	return err
}
