package domainsplit

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/everFinance/domainsplit/cache"
	"github.com/everFinance/domainsplit/schema"
	"github.com/tidwall/gjson"
)

// Cache keeps token records served by the query api. Entries are dropped
// when a committed transaction touches their token.
//
// Every Invalidate bumps the generation. A record read from the chain may
// only be stored with the generation taken before the read, so a reader
// racing a commit never caches what the commit replaced.
type Cache struct {
	local *cache.Cache
	// hashes of signed requests already served
	seen *cache.Cache

	mu  sync.Mutex
	gen uint64
}

func NewCache(ttl time.Duration) (*Cache, error) {
	local, err := cache.NewLocalCache(ttl)
	if err != nil {
		return nil, err
	}
	seen, err := cache.NewLocalCache(2 * signatureWindow)
	if err != nil {
		return nil, err
	}
	return &Cache{local: local, seen: seen}, nil
}

// MarkSeen records a signed request and reports false if it was already
// recorded. Entries outlive the signature window.
func (c *Cache) MarkSeen(hash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.seen.Cache.Get(hash); err == nil {
		return false
	}
	if err := c.seen.Cache.Set(hash, []byte{1}); err != nil {
		log.Warn("cache set seen request failed", "hash", hash, "err", err)
		return false
	}
	return true
}

func tokenKey(tokenId uint64) string {
	return "token/" + strconv.FormatUint(tokenId, 10)
}

func domainKey(name string) string {
	return "domain/" + name
}

func (c *Cache) GetToken(tokenId uint64) (*schema.Token, bool) {
	return c.get(tokenKey(tokenId))
}

func (c *Cache) GetDomain(name string) (*schema.Token, bool) {
	return c.get(domainKey(name))
}

// Generation is taken before reading a record that is later passed to PutToken.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// PutToken stores tok unless an invalidation happened since gen was taken.
func (c *Cache) PutToken(tok *schema.Token, gen uint64) bool {
	data, err := json.Marshal(tok)
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	if err := c.local.Cache.Set(tokenKey(tok.TokenId), data); err != nil {
		log.Warn("cache set token failed", "tokenId", tok.TokenId, "err", err)
		return false
	}
	if err := c.local.Cache.Set(domainKey(tok.DomainName), data); err != nil {
		log.Warn("cache set domain failed", "domain", tok.DomainName, "err", err)
	}
	return true
}

func (c *Cache) get(key string) (*schema.Token, bool) {
	data, err := c.local.Cache.Get(key)
	if err != nil {
		return nil, false
	}
	tok := &schema.Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, false
	}
	return tok, true
}

// Invalidate drops every token the registry logs refer to.
func (c *Cache) Invalidate(registry common.Address, logs []*schema.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for _, l := range logs {
		if l.Address != registry {
			continue
		}
		res := gjson.GetBytes(l.Data, "tokenId")
		if !res.Exists() {
			continue
		}
		tokenId := res.Uint()
		if tok, ok := c.GetToken(tokenId); ok {
			_ = c.local.Cache.Delete(domainKey(tok.DomainName))
		}
		if name := gjson.GetBytes(l.Data, "domainName"); name.Exists() {
			_ = c.local.Cache.Delete(domainKey(name.String()))
		}
		_ = c.local.Cache.Delete(tokenKey(tokenId))
	}
}
