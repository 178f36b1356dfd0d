package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/everFinance/domainsplit/schema"
	"github.com/everFinance/goether"
	"github.com/tidwall/gjson"
	"gopkg.in/h2non/gentleman.v2"
)

// Client talks to a domainsplit node. Transactions are sent as Caller and
// signed by Signer; the node must be served at the root of the url.
type Client struct {
	SCli   *gentleman.Client
	Caller common.Address
	Signer *goether.Signer
}

func New(url string) *Client {
	return &Client{
		SCli: gentleman.New().URL(url),
	}
}

// As returns a client sending transactions signed by signer.
func (c *Client) As(signer *goether.Signer) *Client {
	return &Client{SCli: c.SCli, Caller: signer.Address, Signer: signer}
}

// queries

func (c *Client) GetInfo() (info schema.RespInfo, err error) {
	err = c.get("/info", &info)
	return
}

func (c *Client) GetToken(tokenId uint64) (tok schema.Token, err error) {
	err = c.get(fmt.Sprintf("/token/%d", tokenId), &tok)
	return
}

func (c *Client) GetDomain(name string) (tok schema.Token, err error) {
	err = c.get("/domain/"+name, &tok)
	return
}

func (c *Client) GetRoyalty(tokenId uint64, price *big.Int) (r schema.RespRoyalty, err error) {
	err = c.get(fmt.Sprintf("/royalty/%d/%s", tokenId, price), &r)
	return
}

func (c *Client) GetListing(listingId uint64) (l schema.Listing, err error) {
	err = c.get(fmt.Sprintf("/listing/%d", listingId), &l)
	return
}

func (c *Client) GetSplitter(addr common.Address) (sp schema.RespSplitter, err error) {
	err = c.get("/splitter/"+addr.Hex(), &sp)
	return
}

func (c *Client) GetSplitterBalance(addr, account common.Address) (b schema.RespSplitterBalance, err error) {
	err = c.get(fmt.Sprintf("/splitter/%s/balance/%s", addr.Hex(), account.Hex()), &b)
	return
}

func (c *Client) GetSplitterTokenBalance(addr, account, token common.Address) (b schema.RespSplitterBalance, err error) {
	err = c.get(fmt.Sprintf("/splitter/%s/balance/%s?token=%s", addr.Hex(), account.Hex(), token.Hex()), &b)
	return
}

func (c *Client) GetSales(tokenId uint64) (sales []schema.RespSale, err error) {
	err = c.get(fmt.Sprintf("/sales/%d", tokenId), &sales)
	return
}

func (c *Client) GetBalance(addr common.Address) (b schema.RespBalance, err error) {
	err = c.get("/balance/"+addr.Hex(), &b)
	return
}

// transactions

// Mint registers domainName for to and returns the new token id.
func (c *Client) Mint(to common.Address, uri, domainName string) (uint64, error) {
	body, err := c.post("/mint", schema.ReqMint{To: to.Hex(), Uri: uri, DomainName: domainName})
	if err != nil {
		return 0, err
	}
	return gjson.GetBytes(body, "result").Uint(), nil
}

func (c *Client) Burn(tokenId uint64) error {
	_, err := c.post(fmt.Sprintf("/burn/%d", tokenId), nil)
	return err
}

// Approve approves operator for tokenId; the zero address approves the
// marketplace.
func (c *Client) Approve(tokenId uint64, operator common.Address) error {
	req := schema.ReqApprove{TokenId: tokenId}
	if operator != (common.Address{}) {
		req.Operator = operator.Hex()
	}
	_, err := c.post("/approve", req)
	return err
}

func (c *Client) List(tokenId uint64, price *big.Int) (uint64, error) {
	body, err := c.post("/list", schema.ReqList{TokenId: tokenId, Price: price.String()})
	if err != nil {
		return 0, err
	}
	return gjson.GetBytes(body, "result").Uint(), nil
}

func (c *Client) UpdateListing(listingId uint64, price *big.Int) error {
	_, err := c.post(fmt.Sprintf("/listing/%d/price", listingId), schema.ReqPrice{Price: price.String()})
	return err
}

func (c *Client) CancelListing(listingId uint64) error {
	_, err := c.post(fmt.Sprintf("/listing/%d/cancel", listingId), nil)
	return err
}

func (c *Client) Buy(listingId uint64, value *big.Int) (rt schema.RespTx, err error) {
	_, err = c.postJSON(fmt.Sprintf("/listing/%d/buy", listingId), schema.ReqBuy{Value: value.String()}, &rt)
	return
}

func (c *Client) Withdraw(splitter common.Address) error {
	_, err := c.post(fmt.Sprintf("/splitter/%s/withdraw", splitter.Hex()), nil)
	return err
}

func (c *Client) WithdrawToken(splitter, token common.Address) error {
	_, err := c.post(fmt.Sprintf("/splitter/%s/withdraw/%s", splitter.Hex(), token.Hex()), nil)
	return err
}

func (c *Client) WithdrawFees() error {
	_, err := c.post("/fees/withdraw", nil)
	return err
}

func (c *Client) get(path string, v interface{}) error {
	req := c.SCli.Get()
	req.AddPath(path)
	resp, err := req.Send()
	if err != nil {
		return err
	}
	defer resp.Close()
	if !resp.Ok {
		return respError(resp.StatusCode, resp.Bytes())
	}
	return resp.JSON(v)
}

func (c *Client) post(path string, body interface{}) ([]byte, error) {
	return c.postJSON(path, body, nil)
}

func (c *Client) postJSON(path string, body, v interface{}) ([]byte, error) {
	if c.Signer == nil {
		return nil, errors.New("client has no signer")
	}
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return nil, err
		}
	}
	ts := time.Now().UnixMilli()
	sig, err := c.Signer.SignMsg(schema.SignMessage(http.MethodPost, path, ts, data))
	if err != nil {
		return nil, err
	}

	req := c.SCli.Post()
	req.AddPath(path)
	req.SetHeader(schema.CallerHeader, c.Caller.Hex())
	req.SetHeader(schema.TimestampHeader, strconv.FormatInt(ts, 10))
	req.SetHeader(schema.SignatureHeader, hexutil.Encode(sig))
	if data != nil {
		req.JSON(data)
	}
	resp, err := req.Send()
	if err != nil {
		return nil, err
	}
	defer resp.Close()
	data = resp.Bytes()
	if !resp.Ok {
		return nil, respError(resp.StatusCode, data)
	}
	if v != nil {
		err = json.Unmarshal(data, v)
	}
	return data, err
}

// RespError is a non-2xx answer of the node.
type RespError struct {
	StatusCode int
	Err        string
}

func (e *RespError) Error() string {
	return fmt.Sprintf("http code: %d, errMsg: %s", e.StatusCode, e.Err)
}

func respError(code int, body []byte) error {
	msg := gjson.GetBytes(body, "error").String()
	if msg == "" {
		msg = string(body)
	}
	return &RespError{StatusCode: code, Err: msg}
}

// IsStatus reports whether err is a node answer with the given status code.
func IsStatus(err error, code int) bool {
	var re *RespError
	return errors.As(err, &re) && re.StatusCode == code
}
