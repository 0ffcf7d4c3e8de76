package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/twistedxcom/agentmux/internal/logging"
)

// hookDebounce coalesces bursts of file events into one processing pass.
// Hook handlers write-then-rename, which fsnotify reports as multiple events.
const hookDebounce = 100 * time.Millisecond

// HookEvent is a decoded agent hook notification dropped into the hooks
// directory by the hook-handler subcommand.
type HookEvent struct {
	// SessionID identifies the agentmux session, taken from the filename.
	SessionID string
	// Kind is the event class: "stop", "notification", or "permission_prompt".
	Kind string
	// Message is optional human-readable detail from the agent.
	Message string
	// ReceivedAt is when the event file was processed.
	ReceivedAt time.Time
}

// HookWatcher watches the hooks directory for event files and delivers
// decoded events to a handler. Event files are one-shot: each is removed
// after delivery.
type HookWatcher struct {
	dir     string
	watcher *fsnotify.Watcher
	handler func(HookEvent)
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// HooksDir returns the hook event directory under the config dir.
func HooksDir(configDir string) string {
	return filepath.Join(configDir, "hooks")
}

// HookFilePath returns the event file path for a session. The watcher
// recovers the session ID from this filename.
func HookFilePath(hooksDir, sessionID string) string {
	return filepath.Join(hooksDir, sessionID+".json")
}

// NewHookWatcher creates a watcher over dir, creating it if needed. The
// handler is called once per decoded event, from the watcher goroutine.
func NewHookWatcher(dir string, handler func(HookEvent)) (*HookWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &HookWatcher{
		dir:     dir,
		watcher: watcher,
		handler: handler,
		log:     logging.ForComponent(logging.CompHook),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching. Pending event files written while no watcher was
// running are processed first.
func (w *HookWatcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	go w.loop()
	return nil
}

// Stop shuts the watcher down and waits for the loop to exit.
func (w *HookWatcher) Stop() {
	w.cancel()
	_ = w.watcher.Close()
	<-w.done
}

func (w *HookWatcher) loop() {
	defer close(w.done)

	w.drainExisting()

	var debounce *time.Timer
	pending := make(map[string]bool)
	var pendingMu sync.Mutex

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			pendingMu.Lock()
			pending[event.Name] = true
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(hookDebounce, func() {
				pendingMu.Lock()
				files := make([]string, 0, len(pending))
				for f := range pending {
					files = append(files, f)
				}
				pending = make(map[string]bool)
				pendingMu.Unlock()

				for _, f := range files {
					w.processFile(f)
				}
			})
			pendingMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("hook watcher error", "error", err)
		}
	}
}

func (w *HookWatcher) drainExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		w.processFile(filepath.Join(w.dir, entry.Name()))
	}
}

// processFile decodes one event file, delivers it, and removes the file.
// Undecodable files are removed too; leaving them would re-fire forever.
func (w *HookWatcher) processFile(path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	defer os.Remove(path)

	var payload struct {
		Kind    string `json:"kind"`
		Message string `json:"message,omitempty"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		w.log.Warn("discarding undecodable hook file", "path", path, "error", err)
		return
	}

	ev := HookEvent{
		SessionID:  strings.TrimSuffix(filepath.Base(path), ".json"),
		Kind:       payload.Kind,
		Message:    payload.Message,
		ReceivedAt: time.Now(),
	}
	w.log.Debug("hook event",
		"session_id", ev.SessionID, "kind", ev.Kind)

	if w.handler != nil {
		w.handler(ev)
	}
}
