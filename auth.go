package domainsplit

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/everFinance/domainsplit/schema"
	"github.com/everFinance/goether"
	"github.com/gin-gonic/gin"
)

// a signed request is accepted this long before or after its timestamp
const signatureWindow = 5 * time.Minute

// callerOf returns the account a transaction request is sent from. Unless
// the node runs with UnsignedCaller, the request must carry a fresh
// signature of schema.SignMessage by that account, and each signed request
// is served once.
func (s *Domainsplit) callerOf(c *gin.Context) (common.Address, bool) {
	h := c.GetHeader(schema.CallerHeader)
	if !common.IsHexAddress(h) {
		errorResponse(c, ErrInvalidCaller.Error())
		return common.Address{}, false
	}
	caller := common.HexToAddress(h)
	if s.config.UnsignedCaller {
		return caller, true
	}
	if err := s.verifyCaller(c, caller); err != nil {
		log.Warn("reject caller", "caller", caller, "path", c.Request.URL.Path, "err", err)
		c.JSON(http.StatusUnauthorized, schema.RespErr{Err: err.Error()})
		return common.Address{}, false
	}
	return caller, true
}

func (s *Domainsplit) verifyCaller(c *gin.Context, caller common.Address) error {
	ts, err := strconv.ParseInt(c.GetHeader(schema.TimestampHeader), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	age := time.Since(time.UnixMilli(ts))
	if age > signatureWindow || age < -signatureWindow {
		return ErrExpiredSignature
	}
	sig, err := hexutil.Decode(c.GetHeader(schema.SignatureHeader))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	body, err := c.GetRawData()
	if err != nil {
		return err
	}
	// handlers bind the body again
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	msg := schema.SignMessage(c.Request.Method, c.Request.URL.Path, ts, body)
	signer, err := goether.Ecrecover(accounts.TextHash(msg), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if signer != caller {
		return fmt.Errorf("%w: signed by %s", ErrInvalidSignature, signer.Hex())
	}
	if !s.cache.MarkSeen(crypto.Keccak256Hash(caller.Bytes(), msg).Hex()) {
		return ErrReplayedRequest
	}
	return nil
}
