package schema

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	BpsDenominator = 10000

	CreatorShareBps  = 4000 // creator part of the royalty cut
	TreasuryShareBps = 6000 // treasury part of the royalty cut

	MaxMarketplaceFeeBps = 2000
)

// Token is the registry record of one minted domain.
type Token struct {
	TokenId       uint64         `json:"tokenId"`
	DomainName    string         `json:"domainName"`
	URI           string         `json:"uri"`
	Creator       common.Address `json:"creator"`
	MintedAt      int64          `json:"mintedAt"` // unix s
	LastSalePrice *big.Int       `json:"lastSalePrice,omitempty"`
	LastSaleAt    int64          `json:"lastSaleAt,omitempty"` // 0 means never sold
	LastBuyer     common.Address `json:"lastBuyer"`
	Splitter      common.Address `json:"splitter"`
	Owner         common.Address `json:"owner"` // filled by queries, not stored
}

func (t Token) Sold() bool {
	return t.LastSaleAt != 0
}

type Listing struct {
	ListingId   uint64         `json:"listingId"`
	Seller      common.Address `json:"seller"`
	NftContract common.Address `json:"nftContract"`
	TokenId     uint64         `json:"tokenId"`
	Price       *big.Int       `json:"price"`
	Active      bool           `json:"active"`
}

type SplitterInfo struct {
	Creator     common.Address `json:"creator"`
	Treasury    common.Address `json:"treasury"`
	CreatorBps  uint16         `json:"creatorBps"`
	TreasuryBps uint16         `json:"treasuryBps"`
	Initialized bool           `json:"initialized"`
}

type MarketConfig struct {
	FeeTreasury       common.Address `json:"feeTreasury"`
	MarketplaceFeeBps uint16         `json:"marketplaceFeeBps"`
	RefundExcess      bool           `json:"refundExcess"`
}

type RegistryConfig struct {
	Treasury          common.Address `json:"treasury"`
	SplitterFactory   common.Address `json:"splitterFactory"`
	DefaultRoyaltyBps uint16         `json:"defaultRoyaltyBps"`
}

// Contracts are the addresses deployed at genesis.
type Contracts struct {
	SplitterFactory common.Address `json:"splitterFactory"`
	Registry        common.Address `json:"registry"`
	Market          common.Address `json:"market"`
}
