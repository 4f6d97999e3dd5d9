package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrLimit is returned by Create when the manager is at capacity.
var ErrLimit = errors.New("session limit reached")

// Manager creates, looks up and closes sessions. Opening a scene can take
// seconds on a cold image, so the manager never holds its lock across the
// open call.
type Manager struct {
	open        OpenSceneFunc
	maxSessions int
	logger      *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(open OpenSceneFunc, maxSessions int, logger *zap.Logger) *Manager {
	return &Manager{
		open:        open,
		maxSessions: maxSessions,
		logger:      logger,
		sessions:    make(map[string]*Session),
	}
}

// Create opens a scene over imageID and registers a session for it.
func (m *Manager) Create(imageID string, viewW, viewH int) (*Session, error) {
	m.mu.RLock()
	count := len(m.sessions)
	m.mu.RUnlock()
	if count >= m.maxSessions {
		return nil, fmt.Errorf("%w (max %d)", ErrLimit, m.maxSessions)
	}

	opened, err := m.open(imageID, viewW, viewH)
	if err != nil {
		return nil, fmt.Errorf("failed to open scene: %w", err)
	}

	sess := &Session{
		ID:        uuid.New().String(),
		ImageID:   imageID,
		CreatedAt: time.Now(),
		scene:     opened.Scene,
		frames:    opened.Frames,
		closeFn:   opened.Close,
	}

	m.mu.Lock()
	if len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		sess.close()
		return nil, fmt.Errorf("%w (max %d)", ErrLimit, m.maxSessions)
	}
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	m.logger.Info("Session created",
		zap.String("session_id", sess.ID),
		zap.String("image_id", imageID))
	return sess, nil
}

// Get returns the session with the given ID, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Close releases the session with the given ID. It reports whether a
// session was found; releasing joins the cache worker, so it runs outside
// the manager lock.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}

	sess.close()
	m.logger.Info("Session closed", zap.String("session_id", id))
	return true
}

// CloseAll releases every session. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
	if len(sessions) > 0 {
		m.logger.Info("All sessions closed", zap.Int("count", len(sessions)))
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
