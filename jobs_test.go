package domainsplit

import (
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/everFinance/domainsplit/chain"
	"github.com/everFinance/domainsplit/schema"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	mu   sync.Mutex
	fail bool
	msgs map[string][]byte
}

func (w *memWriter) Write(key string, body []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("broker down")
	}
	if w.msgs == nil {
		w.msgs = make(map[string][]byte)
	}
	w.msgs[key+"/"+string(body)] = body
	return nil
}

func (w *memWriter) Close() {}

// sell mints a domain to creator and sells it to buyer for price.
func sell(t *testing.T, s *Domainsplit, domain string, price *big.Int) {
	var tokenId, listingId uint64
	_, err := s.transact(admin, s.contracts.Registry, nil, func(ctx *chain.Context) (err error) {
		tokenId, err = s.registry.Mint(ctx, creator, "", domain)
		return
	})
	require.NoError(t, err)
	_, err = s.transact(creator, s.contracts.Registry, nil, func(ctx *chain.Context) error {
		return s.registry.Approve(ctx, s.contracts.Market, tokenId)
	})
	require.NoError(t, err)
	_, err = s.transact(creator, s.contracts.Market, nil, func(ctx *chain.Context) (err error) {
		listingId, err = s.market.ListToken(ctx, s.contracts.Registry, tokenId, price)
		return
	})
	require.NoError(t, err)
	_, err = s.transact(buyer, s.contracts.Market, price, func(ctx *chain.Context) error {
		return s.market.Buy(ctx, listingId)
	})
	require.NoError(t, err)
}

func TestPublishEvents(t *testing.T) {
	s := newTestServer(t)
	sell(t, s, "alice.eth", big.NewInt(10000))

	pending, err := s.wdb.GetUnpublishedEvents(publishBatch)
	require.NoError(t, err)
	require.NotEmpty(t, pending)

	down := &memWriter{fail: true}
	s.kWriters = map[string]msgWriter{EventTopic: down, SaleTopic: down}
	s.publishEvents()
	left, err := s.wdb.GetUnpublishedEvents(publishBatch)
	require.NoError(t, err)
	assert.Len(t, left, len(pending))

	events, sales := &memWriter{}, &memWriter{}
	s.kWriters = map[string]msgWriter{EventTopic: events, SaleTopic: sales}
	s.publishEvents()
	left, err = s.wdb.GetUnpublishedEvents(publishBatch)
	require.NoError(t, err)
	assert.Len(t, left, 0)
	assert.Len(t, events.msgs, len(pending))
	require.Len(t, sales.msgs, 1)
	for _, body := range sales.msgs {
		sale := schema.KafkaSale{}
		require.NoError(t, json.Unmarshal(body, &sale))
		assert.Equal(t, "10000", sale.Price)
		assert.Equal(t, "250", sale.Fee)
		assert.Equal(t, "500", sale.Royalty)
		assert.Equal(t, buyer.Hex(), sale.Buyer)
	}

	// nothing left to send
	s.publishEvents()
	assert.Len(t, events.msgs, len(pending))
}

func TestUpdateMetrics(t *testing.T) {
	s := newTestServer(t)
	sell(t, s, "alice.eth", big.NewInt(10000))
	sell(t, s, "bob.eth", big.NewInt(10000))

	s.updateMetrics()
	assert.Equal(t, float64(2), testutil.ToFloat64(registryGauge.WithLabelValues("minted")))
	assert.Equal(t, float64(2), testutil.ToFloat64(registryGauge.WithLabelValues("splitters")))
	assert.Equal(t, float64(2), testutil.ToFloat64(marketGauge.WithLabelValues("listings")))
}

func TestCheckMappings(t *testing.T) {
	s := newTestServer(t)
	sell(t, s, "alice.eth", big.NewInt(10000))
	sell(t, s, "bob.eth", big.NewInt(10000))
	_, err := s.transact(buyer, s.contracts.Registry, nil, func(ctx *chain.Context) error {
		return s.registry.Burn(ctx, 1)
	})
	require.NoError(t, err)
	assert.Equal(t, 0, s.checkMappings())
}
