package server

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/samber/lo"

	"relay/internal/protocol"
	"relay/internal/store"
)

// ErrServerClosed is returned when a session tries to register after shutdown
// has begun.
var ErrServerClosed = errors.New("server: closed")

var errNotRegistered = errors.New("session not registered")

// Hub is the central message router. It owns the set of registered sessions,
// the recent-message history and the welcome text.
//
// Concurrency model
// -----------------
//   - One mutex guards sessions, history, welcome text and the closed flag
//     together, so every mutation and every fan-out is serialised.
//   - Sends happen while the mutex is held; each Session serialises its own
//     writes and bounds them with a write deadline.
//   - A send that fails inside a fan-out never closes the recipient while the
//     mutex is held: closing re-enters the Hub through remove. Failed
//     recipients are collected and closed once the mutex is released.
//   - Lock order is hub -> session. Sessions never call into the Hub while
//     holding their own locks.
type Hub struct {
	mu       sync.Mutex
	sessions []*Session // registration order
	recent   *store.Recent
	welcome  string
	closed   bool

	log *slog.Logger
}

func newHub(welcome string, historySize int, log *slog.Logger) *Hub {
	return &Hub{
		recent:  store.NewRecent(historySize),
		welcome: welcome,
		log:     log,
	}
}

// add registers c. Registration is refused once closeAll has run.
func (h *Hub) add(c *Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrServerClosed
	}
	h.sessions = append(h.sessions, c)
	h.log.Debug("session registered", "session", c.id, "total", len(h.sessions))
	return nil
}

// remove unregisters c and announces its departure. It reports false, and
// announces nothing, when c was not registered.
func (h *Hub) remove(c *Session) bool {
	h.mu.Lock()
	if !lo.Contains(h.sessions, c) {
		h.mu.Unlock()
		return false
	}
	h.sessions = lo.Without(h.sessions, c)
	name := c.Name()
	h.log.Info("client left", "session", c.id, "name", name, "total", len(h.sessions))
	failed := h.announceLocked(fmt.Sprintf("%s quit", name))
	h.mu.Unlock()

	h.drop(failed)
	return true
}

// join completes the handshake for c: it takes name, sends the welcome text
// and the history replay, announces the arrival and marks c Active. Holding
// the mutex throughout means c cannot miss or double-receive a broadcast
// between the replay and activation.
func (h *Hub) join(c *Session, name string) error {
	h.mu.Lock()
	if !lo.Contains(h.sessions, c) {
		h.mu.Unlock()
		return errNotRegistered
	}
	c.setName(name)
	if err := c.Send(h.welcome); err != nil {
		h.mu.Unlock()
		return fmt.Errorf("send welcome: %w", err)
	}
	if err := h.replayLocked(c); err != nil {
		h.mu.Unlock()
		return fmt.Errorf("send history: %w", err)
	}
	failed := h.announceLocked(fmt.Sprintf("[%s] joined the server", name))
	c.initialized.Store(true)
	h.log.Info("client joined", "session", c.id, "name", name, "total", len(h.sessions))
	h.mu.Unlock()

	h.drop(failed)
	return nil
}

// broadcastAll delivers message to every Active session.
func (h *Hub) broadcastAll(message string) {
	h.mu.Lock()
	failed := h.fanOutLocked(message, nil)
	h.mu.Unlock()

	h.drop(failed)
}

// broadcastExcept delivers message to every Active session but sender.
func (h *Hub) broadcastExcept(sender *Session, message string) {
	h.mu.Lock()
	failed := h.fanOutLocked(message, sender)
	h.mu.Unlock()

	h.drop(failed)
}

// post records a chat line in the history and relays it to everyone but
// sender. Nothing happens once sender has left the hub.
func (h *Hub) post(sender *Session, message string) {
	h.mu.Lock()
	if !h.registeredLocked(sender) {
		h.mu.Unlock()
		return
	}
	h.recent.Push(message)
	failed := h.fanOutLocked(message, sender)
	h.mu.Unlock()

	h.drop(failed)
}

// emote records message and relays it to every Active session, sender
// included. Nothing happens once sender has left the hub.
func (h *Hub) emote(sender *Session, message string) {
	h.mu.Lock()
	if !h.registeredLocked(sender) {
		h.mu.Unlock()
		return
	}
	h.recent.Push(message)
	failed := h.fanOutLocked(message, nil)
	h.mu.Unlock()

	h.drop(failed)
}

// announce tags text as a system line, records it and relays it to every
// Active session.
func (h *Hub) announce(text string) {
	h.mu.Lock()
	failed := h.announceLocked(text)
	h.mu.Unlock()

	h.drop(failed)
}

// sendByName delivers message to every session currently named target and
// reports whether any matched. sender then receives message again as
// confirmation, or "Target not found".
// A failed delivery to a recipient closes that recipient; a failed delivery
// to sender is returned to the caller.
func (h *Hub) sendByName(sender *Session, target, message string) (bool, error) {
	h.mu.Lock()
	var failed []*Session
	found := false
	for _, c := range h.sessions {
		if !c.running.Load() || c.Name() != target {
			continue
		}
		found = true
		if err := c.Send(message); err != nil {
			h.log.Warn("direct message failed", "session", c.id, "name", target, "error", err)
			failed = append(failed, c)
		}
	}

	reply := message
	if !found {
		reply = "Target not found"
	}
	err := sender.Send(reply)
	h.mu.Unlock()

	h.drop(failed)
	return found, err
}

// rename changes c's display name and announces the change.
func (h *Hub) rename(c *Session, newName string) {
	h.mu.Lock()
	if !h.registeredLocked(c) {
		h.mu.Unlock()
		return
	}
	old := c.Name()
	c.setName(newName)
	h.log.Info("client renamed", "session", c.id, "from", old, "to", newName)
	failed := h.announceLocked(fmt.Sprintf("%s is changing their name to %s", old, newName))
	h.mu.Unlock()

	h.drop(failed)
}

// listNames returns the names of every registered session, Active or not.
func (h *Hub) listNames() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return strings.Join(lo.Map(h.sessions, func(c *Session, _ int) string {
		return c.Name()
	}), ", ")
}

func (h *Hub) welcomeText() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.welcome
}

// setWelcome replaces the welcome text shown to future joiners and returns
// the stored value.
func (h *Hub) setWelcome(text string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.welcome = text
	return h.welcome
}

// closeAll refuses further registrations and returns the sessions registered
// at that moment so the caller can close them outside the mutex.
func (h *Hub) closeAll() []*Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	out := make([]*Session, len(h.sessions))
	copy(out, h.sessions)
	return out
}

// count reports the number of registered sessions.
func (h *Hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// history returns the recent-message snapshot.
func (h *Hub) history() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.recent.Snapshot()
}

// replayLocked sends the history to c as one frame, or one frame per line
// when the joined history is too large. Nothing is sent for an empty history.
// Must be called with h.mu held.
func (h *Hub) replayLocked(c *Session) error {
	lines := h.recent.Snapshot()
	if len(lines) == 0 {
		return nil
	}
	if joined := strings.Join(lines, "\n"); protocol.Fits(joined) {
		return c.Send(joined)
	}
	for _, line := range lines {
		if err := c.Send(line); err != nil {
			return err
		}
	}
	return nil
}

// registeredLocked must be called with h.mu held.
func (h *Hub) registeredLocked(c *Session) bool {
	return c.running.Load() && lo.Contains(h.sessions, c)
}

// announceLocked must be called with h.mu held.
func (h *Hub) announceLocked(text string) []*Session {
	line := protocol.Truncate(protocol.SystemLine(text))
	h.recent.Push(line)
	return h.fanOutLocked(line, nil)
}

// fanOutLocked sends message to every Active session except skip and returns
// the sessions whose send failed. Must be called with h.mu held.
func (h *Hub) fanOutLocked(message string, skip *Session) []*Session {
	recipients := lo.Filter(h.sessions, func(c *Session, _ int) bool {
		return c != skip && c.initialized.Load() && c.running.Load()
	})

	var failed []*Session
	for _, c := range recipients {
		if err := c.Send(message); err != nil {
			h.log.Warn("broadcast send failed", "session", c.id, "name", c.Name(), "error", err)
			failed = append(failed, c)
		}
	}
	return failed
}

// drop closes sessions whose sends failed. Must be called without h.mu held.
func (h *Hub) drop(failed []*Session) {
	for _, c := range failed {
		c.abort(errSendFailed)
	}
}
