// Package channels provides the Channel interface for chat platform
// integrations and a concurrent-safe registry for them.
package channels

import (
	"context"
	"io"
	"sync"
)

// Platform identifies a chat platform.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
)

// Channel is one chat platform integration. A channel delivers user messages
// to its handler and renders replies, including button option prompts, in the
// platform's native form.
type Channel interface {
	// Name returns the platform name.
	Name() Platform

	// Run consumes platform updates until the context is cancelled.
	Run(ctx context.Context) error

	// SendText sends a plain text message to a chat.
	SendText(ctx context.Context, chatID string, text string) error

	// SendOptions sends a text with selectable option titles.
	SendOptions(ctx context.Context, chatID string, text string, titles []string) error

	// SendImage sends an image by URL.
	SendImage(ctx context.Context, chatID string, url string) error

	// Close releases platform resources.
	Close() error
}

// Handler receives user messages from a channel and produces the reply.
type Handler interface {
	HandleMessage(ctx context.Context, userID, userName, message string) (text string, titles []string, err error)
}

// Router holds the registered channels. Concurrent-safe.
type Router struct {
	mu       sync.RWMutex
	registry map[Platform]Channel
}

func NewRouter() *Router {
	return &Router{registry: make(map[Platform]Channel)}
}

func (r *Router) Register(channel Channel) {
	r.mu.Lock()
	r.registry[channel.Name()] = channel
	r.mu.Unlock()
}

func (r *Router) Get(platform Platform) Channel {
	r.mu.RLock()
	ch := r.registry[platform]
	r.mu.RUnlock()
	return ch
}

// Channels returns the registered channels.
func (r *Router) Channels() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Channel, 0, len(r.registry))
	for _, ch := range r.registry {
		out = append(out, ch)
	}
	return out
}

var _ io.Closer = (*Router)(nil)

// Close closes all registered channels.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, channel := range r.registry {
		if err := channel.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
