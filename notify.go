package offlineshell

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Notification is the descriptor derived from a push payload.
// Every field has a default, so an empty payload still produces a
// displayable notification.
type Notification struct {
	Title              string                 `json:"title"`
	Body               string                 `json:"body"`
	Icon               string                 `json:"icon"`
	Badge              string                 `json:"badge"`
	Tag                string                 `json:"tag"`
	RequireInteraction bool                   `json:"requireInteraction"`
	Data               map[string]interface{} `json:"data"`
	Actions            []NotificationAction   `json:"actions"`
}

type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

const (
	defaultTitle = "Voice Assistant"
	defaultBody  = "You have a new notification"
	defaultIcon  = "/static/icons/icon-192.png"
	defaultBadge = "/static/icons/badge-72.png"
	defaultTag   = "general"
)

// notificationFromPayload parses an inbound push payload.
// An absent or malformed payload is treated as an empty object;
// defaults fill every missing field. It never fails.
func notificationFromPayload(payload []byte) Notification {
	var n Notification
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &n); err != nil {
			n = Notification{}
		}
	}
	if n.Title == "" {
		n.Title = defaultTitle
	}
	if n.Body == "" {
		n.Body = defaultBody
	}
	if n.Icon == "" {
		n.Icon = defaultIcon
	}
	if n.Badge == "" {
		n.Badge = defaultBadge
	}
	if n.Tag == "" {
		n.Tag = defaultTag
	}
	if n.Data == nil {
		n.Data = map[string]interface{}{}
	}
	if n.Actions == nil {
		n.Actions = []NotificationAction{}
	}
	return n
}

// Notifier is the display surface for notifications.
// The host application provides a real implementation; the default
// only logs.
type Notifier interface {
	Show(n Notification) error
	// Close dismisses any displayed notification with the given tag.
	Close(tag string)
}

type logNotifier struct {
	log zerolog.Logger
}

func (l logNotifier) Show(n Notification) error {
	l.log.Info().Str("title", n.Title).Str("tag", n.Tag).Msg("Notification")
	return nil
}

func (l logNotifier) Close(tag string) {}

// Client is an open application instance.
type Client interface {
	// URL the instance is currently showing.
	URL() string
	// Focus brings the instance to the foreground.
	Focus() error
}

// ClientRegistry tracks open application instances, including ones not
// yet controlled by this worker.
type ClientRegistry interface {
	Clients() []Client
	// Open starts a new instance at the given url.
	Open(url string) error
}

// MemoryClients is a ClientRegistry held in memory.
// Hosts register instances as they connect; it also serves as the
// default (empty) registry.
type MemoryClients struct {
	mutex   *sync.RWMutex
	clients []Client
	opened  []string
}

func NewMemoryClients() *MemoryClients {
	return &MemoryClients{mutex: &sync.RWMutex{}}
}

func (m *MemoryClients) Register(c Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.clients = append(m.clients, c)
}

func (m *MemoryClients) Clients() []Client {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return append([]Client(nil), m.clients...)
}

func (m *MemoryClients) Open(url string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.opened = append(m.opened, url)
	return nil
}

// Opened returns the urls passed to Open, oldest first.
func (m *MemoryClients) Opened() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return append([]string(nil), m.opened...)
}

// HandlePush derives a notification from the payload and displays it.
// Display errors are logged, never propagated: the push event is done
// once display has been attempted.
func (w *Worker) HandlePush(payload []byte) {
	n := notificationFromPayload(payload)
	w.log.Debug().Str("title", n.Title).Str("tag", n.Tag).Msg("Push received")
	if err := w.notifier.Show(n); err != nil {
		w.log.Error().Err(err).Msg("Could not display notification")
	}
}

// HandleNotificationClick dismisses the notification and routes the
// user back into the application: focus an instance already showing
// the target url, or open a new one.
func (w *Worker) HandleNotificationClick(n Notification) error {
	w.notifier.Close(n.Tag)
	target := w.landingPath
	if u, ok := n.Data["url"].(string); ok && u != "" {
		target = u
	}
	for _, c := range w.clients.Clients() {
		if strings.Contains(c.URL(), target) {
			return c.Focus()
		}
	}
	return w.clients.Open(target)
}

// SyncTagReplay is the recognized deferred-task tag.
const SyncTagReplay = "replay-offline-actions"

// SyncQueue replays deferred offline work.
// There is no offline action log yet; the interface leaves room for
// one without guessing its shape.
type SyncQueue interface {
	Replay(ctx context.Context, tag string) error
}

type noopSyncQueue struct {
	log zerolog.Logger
}

func (q noopSyncQueue) Replay(ctx context.Context, tag string) error {
	q.log.Info().Str("tag", tag).Msg("Offline action replay requested, nothing queued")
	return nil
}

// HandleSync dispatches a background-sync trigger.
// Unrecognized tags are ignored.
func (w *Worker) HandleSync(ctx context.Context, tag string) error {
	if tag != SyncTagReplay {
		w.log.Debug().Str("tag", tag).Msg("Ignoring unknown sync tag")
		return nil
	}
	return w.syncQueue.Replay(ctx, tag)
}
