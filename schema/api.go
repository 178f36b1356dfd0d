package schema

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Transactions name their sender in CallerHeader and prove it with an
// EIP-191 personal signature of SignMessage in SignatureHeader.
const (
	CallerHeader    = "X-Caller"
	SignatureHeader = "X-Signature"
	TimestampHeader = "X-Timestamp" // unix ms
)

// SignMessage is the text signed by the caller of a transaction request.
func SignMessage(method, path string, timestamp int64, body []byte) []byte {
	return []byte(fmt.Sprintf("%s %s\n%d\n%s", method, path, timestamp, body))
}

type ReqMint struct {
	To         string `json:"to"` // defaults to the caller
	Uri        string `json:"uri"`
	DomainName string `json:"domainName"`
}

// ReqApprove approves Operator for TokenId; Operator defaults to the market.
type ReqApprove struct {
	TokenId  uint64 `json:"tokenId"`
	Operator string `json:"operator"`
}

type ReqList struct {
	TokenId uint64 `json:"tokenId"`
	Price   string `json:"price"` // wei
}

type ReqPrice struct {
	Price string `json:"price"`
}

type ReqBuy struct {
	Value string `json:"value"` // wei sent with the purchase
}

type RespTx struct {
	TxHash string      `json:"txHash"`
	Height uint64      `json:"height"`
	Result interface{} `json:"result,omitempty"`
	Logs   []*Log      `json:"logs"`
}

type RespInfo struct {
	Height          uint64         `json:"height"`
	SplitterFactory common.Address `json:"splitterFactory"`
	Registry        common.Address `json:"registry"`
	Market          common.Address `json:"market"`
	RegistryConfig  RegistryConfig `json:"registryConfig"`
	MarketConfig    MarketConfig   `json:"marketConfig"`
	TotalMinted     uint64         `json:"totalMinted"`
	ListingCount    uint64         `json:"listingCount"`
	SplitterCount   uint64         `json:"splitterCount"`
	FeeBalance      string         `json:"feeBalance"`
}

type RespRoyalty struct {
	Receiver common.Address `json:"receiver"`
	Amount   string         `json:"amount"`
}

type RespSplitter struct {
	Address common.Address `json:"address"`
	Balance string         `json:"balance"` // wei held by the splitter
	SplitterInfo
}

type RespSplitterBalance struct {
	Account  common.Address `json:"account"`
	Token    string         `json:"token,omitempty"`
	Balance  string         `json:"balance"`
	Released string         `json:"released"`
}

type RespBalance struct {
	Address    common.Address `json:"address"`
	Balance    string         `json:"balance"`    // wei
	BalanceEth string         `json:"balanceEth"` // decimal ether
}

type RespSale struct {
	SaleRecord
	PriceEth string `json:"priceEth"`
}

type RespErr struct {
	Err string `json:"error"`
}

func (r RespErr) Error() string {
	return r.Err
}
