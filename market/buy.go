package market

import (
	"fmt"
	"math/big"

	"github.com/everFinance/domainsplit/chain"
	"github.com/everFinance/domainsplit/schema"
)

// Buy settles listingId against the attached value. The steps run in a
// fixed order: close the listing, deliver the token, pay the royalty to the
// token's splitter, accrue the fee, pay the seller, record the sale. A failed
// sale record is reported as an event and does not undo the trade.
func (m *Market) Buy(ctx *chain.Context, listingId uint64) error {
	return ctx.NonReentrant(func() error {
		l, err := m.activeListing(ctx.State, listingId)
		if err != nil {
			return err
		}
		cfg, err := m.Config(ctx.State)
		if err != nil {
			return err
		}
		buyer, paid, price := ctx.Caller, ctx.Value, l.Price
		if paid.Cmp(price) < 0 {
			return fmt.Errorf("%w: paid %s, price %s", schema.ErrInsufficientPayment, paid, price)
		}
		refund := new(big.Int).Sub(paid, price)
		if refund.Sign() > 0 && !cfg.RefundExcess {
			return fmt.Errorf("%w: paid %s, price %s", schema.ErrExcessPayment, paid, price)
		}

		nft, err := loadNFT(ctx, l.NftContract)
		if err != nil {
			return err
		}
		fee := bpsOf(price, cfg.MarketplaceFeeBps)
		receiver, royalty, err := nft.RoyaltyInfo(ctx.State, l.TokenId, price)
		if err != nil {
			return err
		}
		proceeds := new(big.Int).Sub(price, fee)
		proceeds.Sub(proceeds, royalty)
		if proceeds.Sign() < 0 {
			return fmt.Errorf("%w: fee %s and royalty %s exceed price %s", schema.ErrInvalidPrice, fee, royalty, price)
		}

		l.Active = false
		if err := m.saveListing(ctx.State, l); err != nil {
			return err
		}

		self := ctx.Self
		if err := ctx.Call(l.NftContract, nil, func(sub *chain.Context) error {
			return nft.SafeTransferFrom(sub, self, buyer, l.TokenId, nil)
		}); err != nil {
			return err
		}
		if err := ctx.Transfer(receiver, royalty); err != nil {
			return err
		}
		ctx.State.AddBig(schema.MarketBucket, m.key(keyFees), fee)
		if err := ctx.Transfer(l.Seller, proceeds); err != nil {
			return err
		}

		if err := ctx.Call(l.NftContract, nil, func(sub *chain.Context) error {
			return nft.RecordSale(sub, l.TokenId, price, buyer)
		}); err != nil {
			log.Warn("record sale failed", "listingId", listingId, "tokenId", l.TokenId, "err", err)
			if err := ctx.Emit(schema.EventSaleRecordFailed, schema.SaleRecordFailedEvent{
				ListingId: listingId,
				TokenId:   l.TokenId,
				Reason:    err.Error(),
			}); err != nil {
				return err
			}
		}

		if err := ctx.Transfer(buyer, refund); err != nil {
			return err
		}
		return ctx.Emit(schema.EventSold, schema.SoldEvent{
			ListingId: listingId,
			TokenId:   l.TokenId,
			Nft:       l.NftContract,
			Seller:    l.Seller,
			Buyer:     buyer,
			Price:     price.String(),
			Fee:       fee.String(),
			Royalty:   royalty.String(),
			Receiver:  receiver,
			Refund:    refund.String(),
		})
	})
}
