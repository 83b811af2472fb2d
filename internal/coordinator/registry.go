package coordinator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ClientRegistry tracks active client session IDs in clients.txt, a
// newline-separated list. Register/Unregister are short
// critical sections guarded by an in-process mutex; the periodic sweep
// shuts the server down once the registry is empty (§4.9).
type ClientRegistry struct {
	path string
	mu   sync.Mutex
}

// NewClientRegistry returns a registry at <runtimeDir>/clients.txt.
func NewClientRegistry(runtimeDir string) *ClientRegistry {
	return &ClientRegistry{path: filepath.Join(runtimeDir, "clients.txt")}
}

// Register appends id to the registry if not already present.
func (r *ClientRegistry) Register(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, err := r.readLocked()
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	ids = append(ids, id)
	return r.writeLocked(ids)
}

// Unregister removes id from the registry if present.
func (r *ClientRegistry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, err := r.readLocked()
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	return r.writeLocked(kept)
}

// List returns the current set of registered client IDs.
func (r *ClientRegistry) List() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readLocked()
}

// Empty reports whether no clients are currently registered.
func (r *ClientRegistry) Empty() (bool, error) {
	ids, err := r.List()
	if err != nil {
		return false, err
	}
	return len(ids) == 0, nil
}

func (r *ClientRegistry) readLocked() ([]string, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read client registry: %w", err)
	}
	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			ids = append(ids, line)
		}
	}
	return ids, nil
}

func (r *ClientRegistry) writeLocked(ids []string) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create runtime dir: %w", err)
	}
	content := ""
	if len(ids) > 0 {
		content = strings.Join(ids, "\n") + "\n"
	}
	if err := os.WriteFile(r.path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write client registry: %w", err)
	}
	return nil
}
