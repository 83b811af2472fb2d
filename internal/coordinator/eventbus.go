package coordinator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventMaxAge is how long a spooled event file may sit unread before
// Consume discards it (§4.9: "Events older than 30s are discarded
// on read").
const EventMaxAge = 30 * time.Second

// Event is one cross-process notification. Type is one of the
// memory:created/updated/deleted/reinforced family, or a code-index /
// document event using the same envelope.
type Event struct {
	Type      string    `json:"type"`
	MemoryID  string    `json:"memoryId,omitempty"`
	ProjectID string    `json:"projectId,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// EventBus is the filesystem event spool: one JSON file per event under
// <runtimeDir>/events/, named <unix-nanos>-<id8>.json so files sort in
// publish order lexicographically within one process.
type EventBus struct {
	dir string
}

// NewEventBus returns a bus rooted at <runtimeDir>/events.
func NewEventBus(runtimeDir string) *EventBus {
	return &EventBus{dir: filepath.Join(runtimeDir, "events")}
}

// Publish writes one event file. Best-effort: a write failure is returned
// but callers are expected to treat publishing as fire-and-forget.
func (b *EventBus) Publish(ev Event) error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("create events dir: %w", err)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	name := fmt.Sprintf("%d-%s.json", ev.Timestamp.UnixNano(), uuid.NewString()[:8])
	path := filepath.Join(b.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write event file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Consume reads every pending event file, deletes it, and returns the
// surviving events sorted by timestamp. Files older than EventMaxAge are
// discarded without being returned.
func (b *EventBus) Consume() ([]Event, error) {
	entries, err := os.ReadDir(b.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read events dir: %w", err)
	}

	now := time.Now()
	var events []Event
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(b.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		_ = os.Remove(path)

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		if now.Sub(ev.Timestamp) > EventMaxAge {
			continue
		}
		events = append(events, ev)
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
	return events, nil
}
