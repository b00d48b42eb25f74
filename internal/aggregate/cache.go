package aggregate

import (
	"strconv"
	"strings"
	"sync"

	"lpAnalytics/internal/model"
)

// entityCache holds pools and tokens already read from the store. Both are
// immutable once created so entries never expire.
type entityCache struct {
	mu     sync.RWMutex
	pools  map[string]model.Pool
	tokens map[string]model.Token
}

func newEntityCache() *entityCache {
	return &entityCache{
		pools:  make(map[string]model.Pool),
		tokens: make(map[string]model.Token),
	}
}

func (c *entityCache) pool(id string) (model.Pool, bool) {
	c.mu.RLock()
	p, ok := c.pools[id]
	c.mu.RUnlock()
	return p, ok
}

func (c *entityCache) setPool(p model.Pool) {
	c.mu.Lock()
	c.pools[p.ID] = p
	c.mu.Unlock()
}

func (c *entityCache) token(chainID uint64, addr string) (model.Token, bool) {
	c.mu.RLock()
	t, ok := c.tokens[tokenKey(chainID, addr)]
	c.mu.RUnlock()
	return t, ok
}

func (c *entityCache) setToken(t model.Token) {
	c.mu.Lock()
	c.tokens[tokenKey(t.ChainID, t.Address)] = t
	c.mu.Unlock()
}

func tokenKey(chainID uint64, addr string) string {
	return strings.ToLower(addr) + "@" + strconv.FormatUint(chainID, 10)
}
