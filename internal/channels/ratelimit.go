package channels

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedChats caps the number of per-chat limiters kept in memory.
const maxTrackedChats = 4096

// SendLimiter paces outbound messages per chat. Chat platforms throttle
// bots per conversation (Telegram: roughly one message per second in a
// chat); Wait blocks until the chat's limiter releases a slot or the
// context ends. Safe for concurrent use.
type SendLimiter struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	chats map[string]*rate.Limiter
}

// NewSendLimiter creates a limiter allowing perSecond messages per chat
// with the given burst.
func NewSendLimiter(perSecond float64, burst int) *SendLimiter {
	return &SendLimiter{
		limit: rate.Limit(perSecond),
		burst: burst,
		chats: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the chat may send again.
func (l *SendLimiter) Wait(ctx context.Context, chatID string) error {
	return l.limiter(chatID).Wait(ctx)
}

func (l *SendLimiter) limiter(chatID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.chats[chatID]; ok {
		return lim
	}
	if len(l.chats) >= maxTrackedChats {
		for k := range l.chats {
			delete(l.chats, k)
			break
		}
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.chats[chatID] = lim
	return lim
}

// InboundLimiter bounds inbound webhook traffic per key (normally the
// caller's IP) within a fixed window, with a hard cap on tracked keys so
// rotating sources cannot exhaust memory. Safe for concurrent use.
type InboundLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	maxHits int
	entries map[string]*inboundWindow
	now     func() time.Time
}

type inboundWindow struct {
	start time.Time
	count int
}

// NewInboundLimiter creates a limiter allowing maxHits per key per window.
func NewInboundLimiter(window time.Duration, maxHits int) *InboundLimiter {
	return &InboundLimiter{
		window:  window,
		maxHits: maxHits,
		entries: make(map[string]*inboundWindow),
		now:     time.Now,
	}
}

// Allow reports whether the key is within its budget and counts the hit.
func (l *InboundLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if len(l.entries) >= maxTrackedChats {
		for k, e := range l.entries {
			if now.Sub(e.start) >= l.window {
				delete(l.entries, k)
			}
		}
		for len(l.entries) >= maxTrackedChats {
			for k := range l.entries {
				delete(l.entries, k)
				break
			}
		}
	}

	e, ok := l.entries[key]
	if !ok || now.Sub(e.start) >= l.window {
		l.entries[key] = &inboundWindow{start: now, count: 1}
		return true
	}

	e.count++
	return e.count <= l.maxHits
}
