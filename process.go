package domainsplit

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/everFinance/domainsplit/chain"
	"github.com/everFinance/domainsplit/schema"
	"gorm.io/datatypes"
)

// transact applies one transaction and hands its receipt to the local
// indexes. A failed transaction leaves no trace in them.
func (s *Domainsplit) transact(from, to common.Address, value *big.Int, fn func(ctx *chain.Context) error) (*schema.Receipt, error) {
	rcpt, err := s.chain.Transact(from, to, value, fn)
	if err != nil {
		return nil, err
	}
	if err := s.processReceipt(rcpt); err != nil {
		log.Error("s.processReceipt(rcpt)", "err", err, "txHash", rcpt.TxHash)
	}
	return rcpt, nil
}

func (s *Domainsplit) processReceipt(rcpt *schema.Receipt) error {
	events, sales, err := receiptRows(rcpt)
	if err != nil {
		return err
	}
	s.cache.Invalidate(s.contracts.Registry, rcpt.Logs)
	for _, l := range rcpt.Logs {
		metricEvent(l.Name)
	}
	return s.wdb.InsertReceipt(events, sales)
}

func receiptRows(rcpt *schema.Receipt) ([]schema.EventLog, []schema.SaleRecord, error) {
	events := make([]schema.EventLog, 0, len(rcpt.Logs))
	for _, l := range rcpt.Logs {
		events = append(events, schema.EventLog{
			TxHash:   rcpt.TxHash.Hex(),
			LogIndex: l.Index,
			Height:   rcpt.Height,
			Contract: l.Address.Hex(),
			Name:     l.Name,
			Data:     datatypes.JSON(l.Data),
			Time:     rcpt.Time,
		})
	}

	recorded := len(rcpt.FindLogs(schema.EventSaleRecordFailed)) == 0
	sales := make([]schema.SaleRecord, 0)
	for _, l := range rcpt.FindLogs(schema.EventSold) {
		sold := schema.SoldEvent{}
		if err := json.Unmarshal(l.Data, &sold); err != nil {
			return nil, nil, err
		}
		sales = append(sales, schema.SaleRecord{
			TxHash:          rcpt.TxHash.Hex(),
			Height:          rcpt.Height,
			ListingId:       sold.ListingId,
			Nft:             sold.Nft.Hex(),
			TokenId:         sold.TokenId,
			Seller:          sold.Seller.Hex(),
			Buyer:           sold.Buyer.Hex(),
			Price:           sold.Price,
			Fee:             sold.Fee,
			Royalty:         sold.Royalty,
			RoyaltyReceiver: sold.Receiver.Hex(),
			Refund:          sold.Refund,
			Recorded:        recorded,
			Time:            rcpt.Time,
		})
	}
	return events, sales, nil
}
