package sdk

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/everFinance/goether"
)

// SDK bundles the multi-step flows of sellers and royalty recipients.
type SDK struct {
	Cli *Client
}

func NewSDK(url string, signer *goether.Signer) *SDK {
	return &SDK{Cli: New(url).As(signer)}
}

// Sell approves the marketplace for tokenId and lists it at price.
func (s *SDK) Sell(tokenId uint64, price *big.Int) (listingId uint64, err error) {
	if err = s.Cli.Approve(tokenId, common.Address{}); err != nil {
		return
	}
	return s.Cli.List(tokenId, price)
}

// BuyAt buys listingId paying exactly its current price.
func (s *SDK) BuyAt(listingId uint64) (*big.Int, error) {
	l, err := s.Cli.GetListing(listingId)
	if err != nil {
		return nil, err
	}
	if !l.Active {
		return nil, fmt.Errorf("listing %d is not active", listingId)
	}
	if _, err := s.Cli.Buy(listingId, l.Price); err != nil {
		return nil, err
	}
	return l.Price, nil
}

// ClaimRoyalties withdraws the caller's ether share from the splitter of
// every given token and returns the total released by this call.
func (s *SDK) ClaimRoyalties(tokenIds ...uint64) (*big.Int, error) {
	total := new(big.Int)
	for _, id := range tokenIds {
		tok, err := s.Cli.GetToken(id)
		if err != nil {
			return total, err
		}
		bal, err := s.Cli.GetSplitterBalance(tok.Splitter, s.Cli.Caller)
		if err != nil {
			return total, err
		}
		owed, ok := new(big.Int).SetString(bal.Balance, 10)
		if !ok || owed.Sign() == 0 {
			continue
		}
		if err := s.Cli.Withdraw(tok.Splitter); err != nil {
			return total, err
		}
		total.Add(total, owed)
	}
	return total, nil
}
