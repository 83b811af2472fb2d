package coordinator

import (
	"context"
	"log/slog"
	"time"
)

// SweepInterval is how often the server checks whether it should shut
// down because no clients remain registered (§4.9: "A periodic sweep
// (5s) shuts down the server when clients.txt becomes empty.").
const SweepInterval = 5 * time.Second

// Server owns the lock and registry for one runtime directory and runs
// the cooperative sweep loop that shuts it down once idle.
type Server struct {
	Lock       *ServerLock
	Clients    *ClientRegistry
	Events     *EventBus
	runtimeDir string
}

// NewServer wires a Server rooted at runtimeDir.
func NewServer(runtimeDir string) *Server {
	return &Server{
		Lock:       NewServerLock(runtimeDir),
		Clients:    NewClientRegistry(runtimeDir),
		Events:     NewEventBus(runtimeDir),
		runtimeDir: runtimeDir,
	}
}

// Start acquires server ownership. Returns false without error if another
// live process already owns the lock.
func (s *Server) Start() (bool, error) {
	return s.Lock.Acquire()
}

// Stop releases the lock.
func (s *Server) Stop() error {
	return s.Lock.Release()
}

// Run drives the sweep loop until ctx is cancelled or the client registry
// goes empty, whichever comes first.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.Stop()
		case <-ticker.C:
			empty, err := s.Clients.Empty()
			if err != nil {
				slog.Warn("client registry sweep failed", slog.String("error", err.Error()))
				continue
			}
			if empty {
				slog.Info("no clients registered, shutting down")
				return s.Stop()
			}
		}
	}
}
