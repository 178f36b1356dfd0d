package schema

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
)

// event names
const (
	EventTransfer         = "Transfer"
	EventApproval         = "Approval"
	EventApprovalForAll   = "ApprovalForAll"
	EventDomainMinted     = "DomainMinted"
	EventDomainBurned     = "DomainBurned"
	EventSaleRecorded     = "SaleRecorded"
	EventRoyaltyUpdated   = "DefaultRoyaltyUpdated"
	EventListed           = "Listed"
	EventListingUpdated   = "ListingUpdated"
	EventListingCanceled  = "ListingCanceled"
	EventSold             = "Sold"
	EventSaleRecordFailed = "SaleRecordFailed"
	EventFeesWithdrawn    = "FeesWithdrawn"
	EventFeeUpdated       = "FeeUpdated"
	EventSplitterCreated  = "SplitterCreated"
	EventPaymentReceived  = "PaymentReceived"
	EventTokenDeposited   = "TokenDeposited"
	EventPaymentReleased  = "PaymentReleased"
	EventTokenReleased    = "TokenReleased"
	EventSplitsUpdated    = "SplitsUpdated"
	EventRoleGranted      = "RoleGranted"
	EventRoleRevoked      = "RoleRevoked"
)

// Log is an event emitted by a contract during a transaction.
type Log struct {
	Address common.Address  `json:"address"`
	Name    string          `json:"name"`
	Data    json.RawMessage `json:"data"`
	TxHash  common.Hash     `json:"txHash"`
	Index   uint            `json:"index"`
}

type Receipt struct {
	TxHash common.Hash    `json:"txHash"`
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Height uint64         `json:"height"`
	Time   int64          `json:"time"`
	Logs   []*Log         `json:"logs"`
}

// FindLogs returns the logs with the given event name, in emission order.
func (r *Receipt) FindLogs(name string) []*Log {
	res := make([]*Log, 0)
	for _, l := range r.Logs {
		if l.Name == name {
			res = append(res, l)
		}
	}
	return res
}

type SoldEvent struct {
	ListingId uint64         `json:"listingId"`
	TokenId   uint64         `json:"tokenId"`
	Nft       common.Address `json:"nft"`
	Seller    common.Address `json:"seller"`
	Buyer     common.Address `json:"buyer"`
	Price     string         `json:"price"`
	Fee       string         `json:"fee"`
	Royalty   string         `json:"royalty"`
	Receiver  common.Address `json:"royaltyReceiver"`
	Refund    string         `json:"refund"`
}

type SaleRecordFailedEvent struct {
	ListingId uint64 `json:"listingId"`
	TokenId   uint64 `json:"tokenId"`
	Reason    string `json:"reason"`
}

type TokenEvent struct {
	TokenId    uint64         `json:"tokenId"`
	DomainName string         `json:"domainName,omitempty"`
	From       common.Address `json:"from"`
	To         common.Address `json:"to"`
	Splitter   common.Address `json:"splitter,omitempty"`
}
