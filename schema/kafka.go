package schema

import "encoding/json"

type KafkaEvent struct {
	TxHash   string          `json:"txHash"`
	Height   uint64          `json:"height"`
	Index    uint            `json:"index"`
	Contract string          `json:"contract"`
	Name     string          `json:"name"`
	Data     json.RawMessage `json:"data"`
	Time     int64           `json:"time"`
}

type KafkaSale struct {
	TxHash    string `json:"txHash"`
	ListingId uint64 `json:"listingId"`
	TokenId   uint64 `json:"tokenId"`
	Seller    string `json:"seller"`
	Buyer     string `json:"buyer"`
	Price     string `json:"price"`
	Royalty   string `json:"royalty"`
	Fee       string `json:"fee"`
	Time      int64  `json:"time"`
}
