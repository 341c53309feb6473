// Package server implements the LAN sync protocol endpoints.
//
// The server exposes /state, /pull, and /push for a paired peer, plus
// /health for pairing discovery and /ws for the GUI layer. Handlers
// are stateless per request: the store is opened fresh for each call
// and only the version allocator survives between requests.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	stdsync "sync"
	"time"

	"github.com/aatrooox/zotepad/internal/config"
	"github.com/aatrooox/zotepad/internal/store"
	zsync "github.com/aatrooox/zotepad/internal/sync"
)

// Config holds server configuration.
type Config struct {
	// Port to listen on (default: config.DefaultPort).
	Port int

	// Token is the shared secret peers must present.
	Token string

	// DatabasePath is the SQLite file holding the replicated tables.
	DatabasePath string

	// DataDir holds the pairing record; its presence drives the
	// "paired" flag on /state.
	DataDir string

	// BuildVersion identifies this build on /state.
	BuildVersion string

	// Logger for server activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	dataDir := config.DefaultDataDir()
	return &Config{
		Port:         config.DefaultPort,
		Token:        config.DefaultToken,
		DatabasePath: filepath.Join(dataDir, "app.db"),
		DataDir:      dataDir,
		BuildVersion: "dev",
		Logger:       log.Default(),
	}
}

// Server holds the process-wide sync state shared across requests.
type Server struct {
	cfg      *Config
	addr     string
	listener net.Listener
	server   *http.Server

	// mu guards the allocator. It is held only for counter access,
	// never across store I/O.
	mu    stdsync.Mutex
	alloc *zsync.Allocator

	notifier *Notifier

	logger *log.Logger
	wg     stdsync.WaitGroup
}

// New creates a sync server. The version allocator starts at zero and
// is seeded from the store when Start runs.
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	s := &Server{
		cfg:    cfg,
		addr:   fmt.Sprintf(":%d", cfg.Port),
		logger: cfg.Logger,
	}
	s.alloc = zsync.NewAllocator(&s.mu, 0)
	s.notifier = NewNotifier(cfg.Logger)
	return s
}

// Allocator exposes the server's version allocator so collaborators
// like the database watcher can advance it.
func (s *Server) Allocator() *zsync.Allocator {
	return s.alloc
}

// Notifier exposes the GUI notification hub.
func (s *Server) Notifier() *Notifier {
	return s.notifier
}

// Start initializes the schema, seeds the version allocator from the
// store, and begins serving.
func (s *Server) Start(ctx context.Context) error {
	st, err := store.Open(s.cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	if err := st.InitSchemaContext(ctx); err != nil {
		_ = st.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	maxVersion, err := st.GlobalMaxVersion(ctx)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("failed to read max version: %w", err)
	}
	if err := st.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	s.alloc.AdvanceTo(maxVersion)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.notifier.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Sync server listening on %s (version %d)", s.addr, s.alloc.Current())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.logger.Println("Stopping sync server")

	s.notifier.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()

	s.logger.Println("Sync server stopped")
	return nil
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/pull", s.handlePull)
	mux.HandleFunc("/push", s.handlePush)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.notifier.HandleWebSocket)
	return mux
}

// paired reports whether a pairing record exists in the data dir.
func (s *Server) paired() bool {
	if s.cfg.DataDir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(s.cfg.DataDir, config.PairingFile))
	return err == nil
}
