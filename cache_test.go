package domainsplit

import (
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/everFinance/domainsplit/chain"
	"github.com/everFinance/domainsplit/schema"
	"github.com/everFinance/domainsplit/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheInvalidate(t *testing.T) {
	c, err := NewCache(time.Minute)
	require.NoError(t, err)
	registry := common.HexToAddress("0x0a")
	other := common.HexToAddress("0x0b")

	gen := c.Generation()
	assert.True(t, c.PutToken(&schema.Token{TokenId: 1, DomainName: "alice.eth", Owner: creator}, gen))
	assert.True(t, c.PutToken(&schema.Token{TokenId: 2, DomainName: "bob.eth"}, gen))
	tok, ok := c.GetDomain("alice.eth")
	require.True(t, ok)
	assert.Equal(t, creator, tok.Owner)

	// logs of other contracts are ignored
	c.Invalidate(registry, []*schema.Log{{Address: other, Name: schema.EventTransfer, Data: []byte(`{"tokenId":1}`)}})
	_, ok = c.GetToken(1)
	assert.True(t, ok)

	c.Invalidate(registry, []*schema.Log{
		{Address: registry, Name: schema.EventTransfer, Data: []byte(`{"tokenId":1}`)},
		{Address: registry, Name: schema.EventRoleGranted, Data: []byte(`{"role":"MINTER_ROLE"}`)},
	})
	_, ok = c.GetToken(1)
	assert.False(t, ok)
	_, ok = c.GetDomain("alice.eth")
	assert.False(t, ok)
	_, ok = c.GetToken(2)
	assert.True(t, ok)

	c.Invalidate(registry, []*schema.Log{{Address: registry, Name: schema.EventDomainBurned, Data: []byte(`{"tokenId":9,"domainName":"bob.eth"}`)}})
	_, ok = c.GetDomain("bob.eth")
	assert.False(t, ok)
}

func TestCacheRefusesRecordReadBeforeSale(t *testing.T) {
	s := newTestServer(t)
	var tokenId, listingId uint64
	_, err := s.transact(admin, s.contracts.Registry, nil, func(ctx *chain.Context) (err error) {
		tokenId, err = s.registry.Mint(ctx, creator, "", "alice.eth")
		return
	})
	require.NoError(t, err)
	_, err = s.transact(creator, s.contracts.Registry, nil, func(ctx *chain.Context) error {
		return s.registry.Approve(ctx, s.contracts.Market, tokenId)
	})
	require.NoError(t, err)
	_, err = s.transact(creator, s.contracts.Market, nil, func(ctx *chain.Context) (err error) {
		listingId, err = s.market.ListToken(ctx, s.contracts.Registry, tokenId, big.NewInt(10000))
		return
	})
	require.NoError(t, err)

	// a query reads the record, then a sale commits before it reaches the cache
	gen := s.cache.Generation()
	var stale *schema.Token
	require.NoError(t, s.view(func(st *state.StateDB) (err error) {
		stale, err = s.registry.TokenOf(st, tokenId)
		return
	}))
	assert.False(t, stale.Sold())
	_, err = s.transact(buyer, s.contracts.Market, big.NewInt(10000), func(ctx *chain.Context) error {
		return s.market.Buy(ctx, listingId)
	})
	require.NoError(t, err)
	assert.False(t, s.cache.PutToken(stale, gen))

	tok := getToken(t, s, "/token/1")
	assert.True(t, tok.Sold())
	assert.Equal(t, "10000", tok.LastSalePrice.String())
	assert.Equal(t, buyer, tok.Owner)
	cached, ok := s.cache.GetToken(tokenId)
	require.True(t, ok)
	assert.Equal(t, buyer, cached.Owner)

	w := doRequest(t, s, http.MethodGet, "/domain/alice.eth", common.Address{}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
