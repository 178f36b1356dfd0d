package sdk

import (
	"encoding/hex"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/everFinance/domainsplit"
	"github.com/everFinance/domainsplit/schema"
	"github.com/everFinance/goether"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accounts struct {
	admin, treasury, fees, seller, buyer *goether.Signer
}

func newAccount(t *testing.T) *goether.Signer {
	k, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := goether.NewSigner(hex.EncodeToString(crypto.FromECDSA(k)))
	require.NoError(t, err)
	return signer
}

// newNode starts a node on a temp dir and returns its url.
func newNode(t *testing.T) (string, accounts) {
	gin.SetMode(gin.TestMode)
	acc := accounts{
		admin:    newAccount(t),
		treasury: newAccount(t),
		fees:     newAccount(t),
		seller:   newAccount(t),
		buyer:    newAccount(t),
	}
	dir := t.TempDir()
	s := domainsplit.New(schema.Config{
		UseSqlite: true,
		SqliteDir: filepath.Join(dir, "sqlite"),
		BoltDir:   filepath.Join(dir, "bolt"),
		Genesis: schema.Genesis{
			Admin:             acc.admin.Address.Hex(),
			Treasury:          acc.treasury.Address.Hex(),
			FeeTreasury:       acc.fees.Address.Hex(),
			MarketplaceFeeBps: 250,
			DefaultRoyaltyBps: 500,
			RefundExcess:      true,
			Alloc:             map[string]string{acc.buyer.Address.Hex(): "1000000"},
		},
	})
	srv := httptest.NewServer(s.Engine())
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	return srv.URL, acc
}

func TestClient(t *testing.T) {
	url, acc := newNode(t)
	cli := New(url)

	info, err := cli.GetInfo()
	require.NoError(t, err)
	assert.True(t, info.MarketConfig.RefundExcess)

	_, err = cli.As(acc.seller).Mint(acc.seller.Address, "", "alice.eth")
	assert.True(t, IsStatus(err, http.StatusForbidden))
	assert.ErrorContains(t, err, schema.ErrUnauthorized.Error())

	tokenId, err := cli.As(acc.admin).Mint(acc.seller.Address, "ipfs://alice", "alice.eth")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tokenId)

	tok, err := cli.GetDomain("alice.eth")
	require.NoError(t, err)
	assert.Equal(t, acc.seller.Address, tok.Owner)

	seller := cli.As(acc.seller)
	require.NoError(t, seller.Approve(tokenId, common.Address{}))
	listingId, err := seller.List(tokenId, big.NewInt(10000))
	require.NoError(t, err)
	require.NoError(t, seller.UpdateListing(listingId, big.NewInt(20000)))

	// overpayment is refunded
	rt, err := cli.As(acc.buyer).Buy(listingId, big.NewInt(25000))
	require.NoError(t, err)
	assert.NotEmpty(t, rt.TxHash)
	bal, err := cli.GetBalance(acc.buyer.Address)
	require.NoError(t, err)
	assert.Equal(t, "980000", bal.Balance)

	roy, err := cli.GetRoyalty(tokenId, big.NewInt(20000))
	require.NoError(t, err)
	assert.Equal(t, tok.Splitter, roy.Receiver)
	assert.Equal(t, "1000", roy.Amount)

	sales, err := cli.GetSales(tokenId)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "5000", sales[0].Refund)

	tb, err := cli.GetSplitterBalance(tok.Splitter, acc.treasury.Address)
	require.NoError(t, err)
	assert.Equal(t, "600", tb.Balance)
	require.NoError(t, cli.As(acc.treasury).Withdraw(tok.Splitter))
	bal, err = cli.GetBalance(acc.treasury.Address)
	require.NoError(t, err)
	assert.Equal(t, "600", bal.Balance)

	require.NoError(t, cli.As(acc.admin).WithdrawFees())
	bal, err = cli.GetBalance(acc.fees.Address)
	require.NoError(t, err)
	assert.Equal(t, "500", bal.Balance)

	_, err = cli.GetListing(99)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	err = seller.CancelListing(listingId)
	assert.True(t, IsStatus(err, http.StatusBadRequest))

	// a request signed by the seller cannot pass as the admin
	forged := cli.As(acc.seller)
	forged.Caller = acc.admin.Address
	err = forged.WithdrawFees()
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.ErrorContains(t, err, "invalid_signature")

	err = cli.WithdrawFees()
	assert.ErrorContains(t, err, "no signer")
}
