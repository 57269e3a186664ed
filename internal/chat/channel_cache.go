package chat

import (
	"strings"
	"sync"
)

// channelCache remembers resolved user→DM-channel pairs so the bot does not
// hit the platform API for every outbound message.
type channelCache struct {
	mu    sync.RWMutex
	store map[string]string
}

func newChannelCache() *channelCache {
	return &channelCache{store: make(map[string]string)}
}

func (c *channelCache) register(userID, channelID string) {
	userID = strings.TrimSpace(userID)
	channelID = strings.TrimSpace(channelID)
	if userID == "" || channelID == "" {
		return
	}

	c.mu.Lock()
	c.store[userID] = channelID
	c.mu.Unlock()
}

func (c *channelCache) lookup(userID string) (string, bool) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", false
	}

	c.mu.RLock()
	channelID, ok := c.store[userID]
	c.mu.RUnlock()
	return channelID, ok
}
