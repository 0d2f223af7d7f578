package mediagroups

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"newsboost-bot/internal/posts"
)

const (
	// DefaultDebounce is how long the manager waits for more items after the latest one.
	DefaultDebounce = 1200 * time.Millisecond
	// DefaultMaxGroupSize is the platform's album limit; a full album flushes at once.
	DefaultMaxGroupSize = 10
)

// FlushFunc receives a complete album with items in arrival order.
type FlushFunc func(ctx context.Context, groupID string, items []posts.InboundPost)

// pendingAlbum is owned by the manager table until it is detached for flushing.
type pendingAlbum struct {
	chatID  int64
	groupID string
	items   []posts.InboundPost
	timer   *time.Timer
}

// Manager collects album items and flushes each album once no new item has
// arrived for the debounce window.
type Manager struct {
	mu       sync.Mutex
	pending  map[string]*pendingAlbum
	debounce time.Duration
	maxSize  int
	flush    FlushFunc
	inFlight sync.WaitGroup
}

// NewManager creates a manager calling flush for every completed album.
func NewManager(debounce time.Duration, maxSize int, flush FlushFunc) *Manager {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxGroupSize
	}
	return &Manager{
		pending:  make(map[string]*pendingAlbum),
		debounce: debounce,
		maxSize:  maxSize,
		flush:    flush,
	}
}

func albumKey(chatID int64, groupID string) string {
	return fmt.Sprintf("%d:%s", chatID, groupID)
}

// Add buffers an album item. The first item starts the debounce timer, later
// items restart it. Items of an album that is already flushing start a new album.
func (m *Manager) Add(post posts.InboundPost) {
	if post.GroupID == "" {
		return
	}
	key := albumKey(post.ChatID, post.GroupID)

	m.mu.Lock()
	album, ok := m.pending[key]
	if !ok {
		album = &pendingAlbum{chatID: post.ChatID, groupID: post.GroupID, items: make([]posts.InboundPost, 0, m.maxSize)}
		m.pending[key] = album
		album.timer = time.AfterFunc(m.debounce, func() { m.expire(key, album) })
		log.Printf("[MediaGroupManager Group:%s] First item %d stored, flushing in %v", post.GroupID, post.MessageID, m.debounce)
	}
	for _, item := range album.items {
		if item.MessageID == post.MessageID {
			m.mu.Unlock()
			return
		}
	}
	album.items = append(album.items, post)
	if len(album.items) < m.maxSize {
		album.timer.Reset(m.debounce)
		m.mu.Unlock()
		return
	}
	m.detachLocked(key, album)
	m.mu.Unlock()

	log.Printf("[MediaGroupManager Group:%s] Album is full (%d items), flushing now", post.GroupID, len(album.items))
	m.inFlight.Add(1)
	go func() {
		defer m.inFlight.Done()
		m.run(album)
	}()
}

// Pending returns the number of albums still collecting.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Flush immediately flushes the album, if any, on the calling goroutine.
func (m *Manager) Flush(chatID int64, groupID string) bool {
	key := albumKey(chatID, groupID)
	m.mu.Lock()
	album, ok := m.pending[key]
	if ok {
		m.detachLocked(key, album)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.run(album)
	return true
}

// Shutdown flushes every pending album and waits for in-flight flushes.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	albums := make([]*pendingAlbum, 0, len(m.pending))
	for key, album := range m.pending {
		m.detachLocked(key, album)
		albums = append(albums, album)
	}
	m.mu.Unlock()

	log.Printf("[MediaGroupManager] Shutting down, flushing %d pending album(s)", len(albums))
	for _, album := range albums {
		m.run(album)
	}
	m.inFlight.Wait()
	log.Println("[MediaGroupManager] Shutdown complete.")
}

// expire is the timer callback. It ignores albums that were already detached.
func (m *Manager) expire(key string, album *pendingAlbum) {
	m.mu.Lock()
	if m.pending[key] != album {
		m.mu.Unlock()
		return
	}
	m.detachLocked(key, album)
	m.inFlight.Add(1)
	m.mu.Unlock()

	defer m.inFlight.Done()
	m.run(album)
}

// detachLocked moves album from Collecting to Flushing. m.mu must be held.
func (m *Manager) detachLocked(key string, album *pendingAlbum) {
	delete(m.pending, key)
	album.timer.Stop()
}

func (m *Manager) run(album *pendingAlbum) {
	log.Printf("[MediaGroupManager Group:%s] Flushing %d item(s)", album.groupID, len(album.items))
	m.flush(context.Background(), album.groupID, album.items)
}
