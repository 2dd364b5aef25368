package notify

import (
	"path"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
)

// ManagerConfig tunes a Manager's limits. Zero values fall back to the
// package defaults.
type ManagerConfig struct {
	MaxSessions              int
	MaxSubscriptionsPerSession int
	PendingLimit             int
	BatchSize                int
	BatchTimeout             time.Duration
	SessionTTL               time.Duration
}

// DefaultMaxSessions bounds how many concurrent subscriber sessions a
// Manager tracks before evicting the least recently active one.
const DefaultMaxSessions = 1000

// Manager routes events to subscriber sessions: session lifecycle,
// subscription matching, and batched delivery.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session
	cfg      ManagerConfig
	batcher  *batcher
}

// NewManager returns a Manager with deliver called for every flushed
// batch. deliver is invoked from the batcher's own timer goroutine or
// the calling goroutine of Notify, never concurrently per session.
func NewManager(cfg ManagerConfig, deliver DeliverFunc) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.MaxSubscriptionsPerSession <= 0 {
		cfg.MaxSubscriptionsPerSession = DefaultMaxSubscriptionsPerSession
	}
	if cfg.PendingLimit <= 0 {
		cfg.PendingLimit = DefaultPendingLimit
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}

	m := &Manager{
		sessions: make(map[string]*session),
		cfg:      cfg,
	}
	m.batcher = newBatcher(cfg.BatchSize, cfg.BatchTimeout, func(sessionID string, events []Event) {
		m.mu.Lock()
		sess, ok := m.sessions[sessionID]
		m.mu.Unlock()
		if !ok {
			return
		}
		for _, evt := range events {
			sess.enqueue(evt)
		}
		if deliver != nil {
			deliver(sessionID, events)
		}
	})
	return m
}

// CreateSession starts a new subscriber session, evicting the least
// recently active one first if at capacity, and returns its ID.
func (m *Manager) CreateSession() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.cfg.MaxSessions {
		m.evictOldestLocked()
	}
	id := uuid.NewString()
	m.sessions[id] = newSession(id, m.cfg.MaxSubscriptionsPerSession, m.cfg.PendingLimit)
	return id
}

func (m *Manager) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, sess := range m.sessions {
		t := sess.idleSince()
		if oldestID == "" || t.Before(oldest) {
			oldestID, oldest = id, t
		}
	}
	if oldestID != "" {
		delete(m.sessions, oldestID)
	}
}

// RemoveSession discards a session and every subscription it owns.
func (m *Manager) RemoveSession(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return false
	}
	delete(m.sessions, sessionID)
	return true
}

// PruneIdleSessions removes every session idle for longer than
// SessionTTL, returning how many were removed.
func (m *Manager) PruneIdleSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, sess := range m.sessions {
		if time.Since(sess.idleSince()) > m.cfg.SessionTTL {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Subscribe registers a subscription under sessionID, creating the
// session first if it does not yet exist.
func (m *Manager) Subscribe(sessionID string, scope Scope, uriPattern string, filter Filter) (*Subscription, error) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		sess = newSession(sessionID, m.cfg.MaxSubscriptionsPerSession, m.cfg.PendingLimit)
		m.sessions[sessionID] = sess
	}
	m.mu.Unlock()

	sub := &Subscription{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Scope:      scope,
		URIPattern: uriPattern,
		Filter:     filter,
		CreatedAt:  time.Now(),
	}
	if !sess.addSubscription(sub) {
		return nil, errSubscriptionLimitReached
	}
	return sub, nil
}

// Unsubscribe removes one subscription from a session.
func (m *Manager) Unsubscribe(sessionID, subscriptionID string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return sess.removeSubscription(subscriptionID)
}

// Notify routes an event to every matching subscription and queues it
// for batched delivery to that subscription's session.
func (m *Manager) Notify(eventType EventType, resourceURI string, data map[string]any, language, source string) Event {
	evt := Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		ResourceURI: resourceURI,
		Timestamp:   time.Now(),
		Data:        data,
		Language:    language,
		Source:      source,
	}

	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()

	for _, sess := range sessions {
		for _, sub := range sess.activeSubscriptions() {
			if !matches(sub, evt) {
				continue
			}
			sub.LastNotification = evt.Timestamp
			sub.NotificationCount++
			m.batcher.add(sess.id, evt)
		}
	}
	return evt
}

// Flush delivers every session's pending batch immediately, used on
// shutdown so no queued event is lost to a pending timer.
func (m *Manager) Flush() {
	m.batcher.flushAll()
}

// Drain returns and clears a session's delivered-but-unread event queue,
// used by a polling transport (as opposed to a push callback).
func (m *Manager) Drain(sessionID string) []Event {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return sess.drain()
}

func matches(sub *Subscription, evt Event) bool {
	if !scopeMatches(sub.Scope, sub.URIPattern, evt.ResourceURI) {
		return false
	}
	return filterMatches(sub.Filter, evt)
}

func scopeMatches(scope Scope, pattern, uri string) bool {
	switch scope {
	case ScopeGlobal:
		return true
	case ScopeProject:
		return strings.HasPrefix(uri, pattern) || strings.HasPrefix(pattern, uri)
	case ScopeDirectory:
		rel, err := pathRelative(pattern, uri)
		return err == nil && rel != ".." && !strings.HasPrefix(rel, "../")
	case ScopeFile:
		if uri == pattern {
			return true
		}
		ok, _ := doublestar.Match(pattern, uri)
		return ok
	case ScopeSymbol, ScopeSearch:
		ok, _ := doublestar.Match(pattern, uri)
		return ok
	default:
		return false
	}
}

func pathRelative(base, target string) (string, error) {
	rel, err := pathRel(base, target)
	if err != nil {
		return "", err
	}
	return rel, nil
}

// pathRel wraps path.Rel-equivalent logic for URI-style (always
// forward-slash) paths, since the standard library only offers
// filepath.Rel for OS-native separators.
func pathRel(base, target string) (string, error) {
	base = strings.TrimSuffix(path.Clean(base), "/")
	target = path.Clean(target)
	if target == base {
		return ".", nil
	}
	if strings.HasPrefix(target, base+"/") {
		return strings.TrimPrefix(target, base+"/"), nil
	}
	return "", errNotRelative
}

func filterMatches(f Filter, evt Event) bool {
	if len(f.NotificationTypes) > 0 && !containsType(f.NotificationTypes, evt.Type) {
		return false
	}
	if len(f.FileExtensions) > 0 && !matchesExtension(f.FileExtensions, evt.ResourceURI) {
		return false
	}
	if len(f.Languages) > 0 && evt.Language != "" && !containsString(f.Languages, evt.Language) {
		return false
	}
	for _, pattern := range f.ExcludePatterns {
		if ok, _ := doublestar.Match(pattern, evt.ResourceURI); ok {
			return false
		}
	}
	return true
}

func containsType(types []EventType, t EventType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func matchesExtension(extensions []string, uri string) bool {
	ext := strings.TrimPrefix(path.Ext(uri), ".")
	return containsString(extensions, ext)
}
