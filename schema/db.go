package schema

import (
	"time"

	"gorm.io/datatypes"
)

// EventLog is a contract event of a committed transaction. Unpublished rows
// are the outbox of the kafka publisher.
type EventLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	TxHash    string         `gorm:"uniqueIndex:idx_tx_log;size:66" json:"txHash"`
	LogIndex  uint           `gorm:"uniqueIndex:idx_tx_log" json:"logIndex"`
	Height    uint64         `gorm:"index" json:"height"`
	Contract  string         `gorm:"size:42" json:"contract"`
	Name      string         `gorm:"index;size:64" json:"name"`
	Data      datatypes.JSON `json:"data"`
	Time      int64          `json:"time"` // unix s
	Published bool           `gorm:"index" json:"published"`
}

// SaleRecord is one settled purchase, taken from Sold events.
type SaleRecord struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	TxHash          string `gorm:"uniqueIndex;size:66" json:"txHash"`
	Height          uint64 `json:"height"`
	ListingId       uint64 `json:"listingId"`
	Nft             string `gorm:"index:idx_token;size:42" json:"nft"`
	TokenId         uint64 `gorm:"index:idx_token" json:"tokenId"`
	Seller          string `gorm:"index;size:42" json:"seller"`
	Buyer           string `gorm:"index;size:42" json:"buyer"`
	Price           string `json:"price"` // wei
	Fee             string `json:"fee"`
	Royalty         string `json:"royalty"`
	RoyaltyReceiver string `json:"royaltyReceiver"`
	Refund          string `json:"refund"`
	Recorded        bool   `json:"recorded"` // false when the registry rejected the sale record
	Time            int64  `json:"time"`
}
