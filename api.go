package domainsplit

import (
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/everFinance/domainsplit/chain"
	dcommon "github.com/everFinance/domainsplit/common"
	"github.com/everFinance/domainsplit/schema"
	"github.com/everFinance/domainsplit/splitter"
	"github.com/everFinance/domainsplit/state"
	"github.com/gin-gonic/gin"
)

func (s *Domainsplit) registerRoutes() {
	r := s.engine
	r.Use(dcommon.RequestIdMiddleware())
	r.Use(dcommon.CORSMiddleware())
	if rl := s.config.RateLimit; rl.Limit > 0 {
		whitelist := make(map[string]struct{}, len(rl.Whitelist))
		for _, ip := range rl.Whitelist {
			whitelist[ip] = struct{}{}
		}
		r.Use(dcommon.LimiterMiddleware(rl.Limit, rl.Period, whitelist))
	}

	v1 := r.Group("/")
	{
		// queries
		v1.GET("/info", s.getInfo)
		v1.GET("/token/:id", s.getToken)
		v1.GET("/domain/:name", s.getDomain)
		v1.GET("/royalty/:id/:price", s.getRoyalty)
		v1.GET("/listing/:id", s.getListing)
		v1.GET("/splitter/:addr", s.getSplitter)
		v1.GET("/splitter/:addr/balance/:account", s.getSplitterBalance)
		v1.GET("/sales/:tokenId", s.getSales)
		v1.GET("/balance/:addr", s.getBalance)

		// transactions, sent as the X-Caller account and signed by it
		v1.POST("/mint", s.mint)
		v1.POST("/burn/:id", s.burn)
		v1.POST("/approve", s.approve)
		v1.POST("/list", s.list)
		v1.POST("/listing/:id/price", s.updateListing)
		v1.POST("/listing/:id/cancel", s.cancelListing)
		v1.POST("/listing/:id/buy", s.buy)
		v1.POST("/splitter/:addr/withdraw", s.withdraw)
		v1.POST("/splitter/:addr/withdraw/:token", s.withdrawToken)
		v1.POST("/fees/withdraw", s.withdrawFees)
	}
}

func (s *Domainsplit) runAPI(port string) {
	if err := s.engine.Run(port); err != nil {
		panic(err)
	}
}

func (s *Domainsplit) getInfo(c *gin.Context) {
	info := schema.RespInfo{
		Height:          s.chain.Height(),
		SplitterFactory: s.contracts.SplitterFactory,
		Registry:        s.contracts.Registry,
		Market:          s.contracts.Market,
	}
	err := s.view(func(st *state.StateDB) (err error) {
		if info.RegistryConfig, err = s.registry.Config(st); err != nil {
			return
		}
		if info.MarketConfig, err = s.market.Config(st); err != nil {
			return
		}
		info.TotalMinted = s.registry.TotalMinted(st)
		info.ListingCount = s.market.ListingCount(st)
		info.SplitterCount = s.factory.Count(st)
		info.FeeBalance = s.market.FeeBalance(st).String()
		return
	})
	if err != nil {
		internalErrorResponse(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Domainsplit) getToken(c *gin.Context) {
	tokenId, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		errorResponse(c, "invalid token id")
		return
	}
	if tok, ok := s.cache.GetToken(tokenId); ok {
		c.JSON(http.StatusOK, tok)
		return
	}
	gen := s.cache.Generation()
	var tok *schema.Token
	err = s.view(func(st *state.StateDB) (err error) {
		tok, err = s.registry.TokenOf(st, tokenId)
		return
	})
	if err != nil {
		txErrorResponse(c, err)
		return
	}
	s.cache.PutToken(tok, gen)
	c.JSON(http.StatusOK, tok)
}

func (s *Domainsplit) getDomain(c *gin.Context) {
	name := c.Param("name")
	if tok, ok := s.cache.GetDomain(name); ok {
		c.JSON(http.StatusOK, tok)
		return
	}
	gen := s.cache.Generation()
	var tok *schema.Token
	err := s.view(func(st *state.StateDB) (err error) {
		tok, err = s.registry.TokenByDomain(st, name)
		return
	})
	if err != nil {
		txErrorResponse(c, err)
		return
	}
	s.cache.PutToken(tok, gen)
	c.JSON(http.StatusOK, tok)
}

func (s *Domainsplit) getRoyalty(c *gin.Context) {
	tokenId, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		errorResponse(c, "invalid token id")
		return
	}
	price, err := parseWei(c.Param("price"))
	if err != nil {
		errorResponse(c, err.Error())
		return
	}
	var (
		receiver common.Address
		amount   *big.Int
	)
	err = s.view(func(st *state.StateDB) (err error) {
		receiver, amount, err = s.registry.RoyaltyInfo(st, tokenId, price)
		return
	})
	if err != nil {
		txErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, schema.RespRoyalty{Receiver: receiver, Amount: amount.String()})
}

func (s *Domainsplit) getListing(c *gin.Context) {
	listingId, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		errorResponse(c, "invalid listing id")
		return
	}
	var l *schema.Listing
	err = s.view(func(st *state.StateDB) (err error) {
		l, err = s.market.Listing(st, listingId)
		return
	})
	if err != nil {
		txErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (s *Domainsplit) getSplitter(c *gin.Context) {
	sp, ok := s.splitterParam(c)
	if !ok {
		return
	}
	resp := schema.RespSplitter{Address: sp.Address()}
	err := s.view(func(st *state.StateDB) (err error) {
		resp.SplitterInfo, err = sp.Info(st)
		return
	})
	if err != nil {
		txErrorResponse(c, err)
		return
	}
	resp.Balance = s.chain.BalanceOf(sp.Address()).String()
	c.JSON(http.StatusOK, resp)
}

// getSplitterBalance reports the ether owed to account, or the token
// balance when the token query parameter is set.
func (s *Domainsplit) getSplitterBalance(c *gin.Context) {
	sp, ok := s.splitterParam(c)
	if !ok {
		return
	}
	account, err := parseAddress(c.Param("account"))
	if err != nil {
		errorResponse(c, err.Error())
		return
	}
	resp := schema.RespSplitterBalance{Account: account}
	tokenHex := c.Query("token")
	var token common.Address
	if tokenHex != "" {
		if token, err = parseAddress(tokenHex); err != nil {
			errorResponse(c, err.Error())
			return
		}
		resp.Token = token.Hex()
	}
	_ = s.view(func(st *state.StateDB) error {
		if tokenHex == "" {
			resp.Balance = sp.Balance(st, account).String()
			resp.Released = sp.Released(st, account).String()
		} else {
			resp.Balance = sp.TokenBalance(st, account, token).String()
			resp.Released = sp.TokenReleased(st, account, token).String()
		}
		return nil
	})
	c.JSON(http.StatusOK, resp)
}

func (s *Domainsplit) getSales(c *gin.Context) {
	tokenId, err := strconv.ParseUint(c.Param("tokenId"), 10, 64)
	if err != nil {
		errorResponse(c, "invalid token id")
		return
	}
	sales, err := s.wdb.GetSales(s.contracts.Registry.Hex(), tokenId)
	if err != nil {
		internalErrorResponse(c, err.Error())
		return
	}
	resp := make([]schema.RespSale, 0, len(sales))
	for _, sale := range sales {
		price, _ := new(big.Int).SetString(sale.Price, 10)
		if price == nil {
			price = new(big.Int)
		}
		resp = append(resp, schema.RespSale{SaleRecord: sale, PriceEth: weiToEth(price).String()})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Domainsplit) getBalance(c *gin.Context) {
	addr, err := parseAddress(c.Param("addr"))
	if err != nil {
		errorResponse(c, err.Error())
		return
	}
	bal := s.chain.BalanceOf(addr)
	c.JSON(http.StatusOK, schema.RespBalance{
		Address:    addr,
		Balance:    bal.String(),
		BalanceEth: weiToEth(bal).String(),
	})
}

func (s *Domainsplit) mint(c *gin.Context) {
	caller, ok := s.callerOf(c)
	if !ok {
		return
	}
	req := schema.ReqMint{}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, err.Error())
		return
	}
	to := caller
	if req.To != "" {
		var err error
		if to, err = parseAddress(req.To); err != nil {
			errorResponse(c, err.Error())
			return
		}
	}
	var tokenId uint64
	rcpt, err := s.transact(caller, s.contracts.Registry, nil, func(ctx *chain.Context) (err error) {
		tokenId, err = s.registry.Mint(ctx, to, req.Uri, req.DomainName)
		return
	})
	txResponse(c, rcpt, tokenId, err)
}

func (s *Domainsplit) burn(c *gin.Context) {
	caller, ok := s.callerOf(c)
	if !ok {
		return
	}
	tokenId, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		errorResponse(c, "invalid token id")
		return
	}
	rcpt, err := s.transact(caller, s.contracts.Registry, nil, func(ctx *chain.Context) error {
		return s.registry.Burn(ctx, tokenId)
	})
	txResponse(c, rcpt, nil, err)
}

func (s *Domainsplit) approve(c *gin.Context) {
	caller, ok := s.callerOf(c)
	if !ok {
		return
	}
	req := schema.ReqApprove{}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, err.Error())
		return
	}
	operator := s.contracts.Market
	if req.Operator != "" {
		var err error
		if operator, err = parseAddress(req.Operator); err != nil {
			errorResponse(c, err.Error())
			return
		}
	}
	rcpt, err := s.transact(caller, s.contracts.Registry, nil, func(ctx *chain.Context) error {
		return s.registry.Approve(ctx, operator, req.TokenId)
	})
	txResponse(c, rcpt, nil, err)
}

func (s *Domainsplit) list(c *gin.Context) {
	caller, ok := s.callerOf(c)
	if !ok {
		return
	}
	req := schema.ReqList{}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, err.Error())
		return
	}
	price, err := parseWei(req.Price)
	if err != nil {
		errorResponse(c, err.Error())
		return
	}
	var listingId uint64
	rcpt, err := s.transact(caller, s.contracts.Market, nil, func(ctx *chain.Context) (err error) {
		listingId, err = s.market.ListToken(ctx, s.contracts.Registry, req.TokenId, price)
		return
	})
	txResponse(c, rcpt, listingId, err)
}

func (s *Domainsplit) updateListing(c *gin.Context) {
	caller, ok := s.callerOf(c)
	if !ok {
		return
	}
	listingId, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		errorResponse(c, "invalid listing id")
		return
	}
	req := schema.ReqPrice{}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, err.Error())
		return
	}
	price, err := parseWei(req.Price)
	if err != nil {
		errorResponse(c, err.Error())
		return
	}
	rcpt, err := s.transact(caller, s.contracts.Market, nil, func(ctx *chain.Context) error {
		return s.market.UpdateListing(ctx, listingId, price)
	})
	txResponse(c, rcpt, nil, err)
}

func (s *Domainsplit) cancelListing(c *gin.Context) {
	caller, ok := s.callerOf(c)
	if !ok {
		return
	}
	listingId, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		errorResponse(c, "invalid listing id")
		return
	}
	rcpt, err := s.transact(caller, s.contracts.Market, nil, func(ctx *chain.Context) error {
		return s.market.CancelListing(ctx, listingId)
	})
	txResponse(c, rcpt, nil, err)
}

func (s *Domainsplit) buy(c *gin.Context) {
	caller, ok := s.callerOf(c)
	if !ok {
		return
	}
	listingId, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		errorResponse(c, "invalid listing id")
		return
	}
	req := schema.ReqBuy{}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, err.Error())
		return
	}
	value, err := parseWei(req.Value)
	if err != nil {
		errorResponse(c, err.Error())
		return
	}
	rcpt, err := s.transact(caller, s.contracts.Market, value, func(ctx *chain.Context) error {
		return s.market.Buy(ctx, listingId)
	})
	txResponse(c, rcpt, nil, err)
}

func (s *Domainsplit) withdraw(c *gin.Context) {
	caller, ok := s.callerOf(c)
	if !ok {
		return
	}
	sp, ok := s.splitterParam(c)
	if !ok {
		return
	}
	rcpt, err := s.transact(caller, sp.Address(), nil, sp.Withdraw)
	txResponse(c, rcpt, nil, err)
}

func (s *Domainsplit) withdrawToken(c *gin.Context) {
	caller, ok := s.callerOf(c)
	if !ok {
		return
	}
	sp, ok := s.splitterParam(c)
	if !ok {
		return
	}
	token, err := parseAddress(c.Param("token"))
	if err != nil {
		errorResponse(c, err.Error())
		return
	}
	rcpt, err := s.transact(caller, sp.Address(), nil, func(ctx *chain.Context) error {
		return sp.WithdrawToken(ctx, token)
	})
	txResponse(c, rcpt, nil, err)
}

func (s *Domainsplit) withdrawFees(c *gin.Context) {
	caller, ok := s.callerOf(c)
	if !ok {
		return
	}
	rcpt, err := s.transact(caller, s.contracts.Market, nil, s.market.WithdrawFees)
	txResponse(c, rcpt, nil, err)
}

// splitterParam resolves the :addr param to a deployed splitter.
func (s *Domainsplit) splitterParam(c *gin.Context) (*splitter.Splitter, bool) {
	addr, err := parseAddress(c.Param("addr"))
	if err != nil {
		errorResponse(c, err.Error())
		return nil, false
	}
	if s.chain.CodeAt(addr) != splitter.Kind {
		c.JSON(http.StatusNotFound, schema.RespErr{Err: schema.ErrNotExist.Error()})
		return nil, false
	}
	return splitter.At(addr), true
}

func parseWei(v string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(v), 10)
	if !ok || n.Sign() < 0 {
		return nil, schema.ErrInvalidAmount
	}
	return n, nil
}

func txResponse(c *gin.Context, rcpt *schema.Receipt, result interface{}, err error) {
	if err != nil {
		txErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, schema.RespTx{
		TxHash: rcpt.TxHash.Hex(),
		Height: rcpt.Height,
		Result: result,
		Logs:   rcpt.Logs,
	})
}

func txErrorResponse(c *gin.Context, err error) {
	switch {
	case errors.Is(err, schema.ErrUnauthorized), errors.Is(err, schema.ErrNotSeller):
		c.JSON(http.StatusForbidden, schema.RespErr{Err: err.Error()})
	case errors.Is(err, schema.ErrUnknownToken), errors.Is(err, schema.ErrUnknownListing), errors.Is(err, schema.ErrNotExist):
		c.JSON(http.StatusNotFound, schema.RespErr{Err: err.Error()})
	default:
		errorResponse(c, err.Error())
	}
}

func errorResponse(c *gin.Context, err string) {
	// client error
	c.JSON(http.StatusBadRequest, schema.RespErr{
		Err: err,
	})
}

func internalErrorResponse(c *gin.Context, err string) {
	c.JSON(http.StatusInternalServerError, schema.RespErr{
		Err: err,
	})
}
