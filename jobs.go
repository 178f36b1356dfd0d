package domainsplit

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/everFinance/domainsplit/schema"
	"github.com/everFinance/domainsplit/state"
	"github.com/panjf2000/ants/v2"
)

const publishBatch = 100

// msgWriter is the sending side of one kafka topic.
type msgWriter interface {
	Write(key string, body []byte) error
	Close()
}

func (s *Domainsplit) runJobs() {
	if len(s.kWriters) > 0 {
		s.scheduler.Every(2).Seconds().SingletonMode().Do(s.publishEvents)
	}
	s.scheduler.Every(10).Seconds().SingletonMode().Do(s.updateMetrics)
	s.scheduler.Every(1).Minute().SingletonMode().Do(s.checkMappings)

	s.scheduler.StartAsync()
}

// publishEvents drains the event outbox to kafka. Rows are marked only
// after every message derived from them was written.
func (s *Domainsplit) publishEvents() {
	events, err := s.wdb.GetUnpublishedEvents(publishBatch)
	if err != nil {
		log.Error("s.wdb.GetUnpublishedEvents(publishBatch)", "err", err)
		return
	}
	if len(events) == 0 {
		return
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done = make([]uint, 0, len(events))
	)
	p, _ := ants.NewPoolWithFunc(20, func(i interface{}) {
		defer wg.Done()
		ev := i.(schema.EventLog)
		if err := s.publishEvent(ev); err != nil {
			log.Error("publishEvent", "err", err, "txHash", ev.TxHash, "index", ev.LogIndex)
			return
		}
		mu.Lock()
		done = append(done, ev.ID)
		mu.Unlock()
	})
	defer p.Release()

	for _, ev := range events {
		wg.Add(1)
		_ = p.Invoke(ev)
	}
	wg.Wait()

	if err := s.wdb.SetEventsPublished(done); err != nil {
		log.Error("s.wdb.SetEventsPublished(done)", "err", err)
		return
	}
	log.Debug("publish events success", "number", len(done))
}

func (s *Domainsplit) publishEvent(ev schema.EventLog) error {
	body, err := json.Marshal(schema.KafkaEvent{
		TxHash:   ev.TxHash,
		Height:   ev.Height,
		Index:    ev.LogIndex,
		Contract: ev.Contract,
		Name:     ev.Name,
		Data:     json.RawMessage(ev.Data),
		Time:     ev.Time,
	})
	if err != nil {
		return err
	}
	if err := s.kWriters[EventTopic].Write(ev.TxHash, body); err != nil {
		return err
	}
	if ev.Name != schema.EventSold {
		return nil
	}

	sold := schema.SoldEvent{}
	if err := json.Unmarshal(ev.Data, &sold); err != nil {
		return err
	}
	body, err = json.Marshal(schema.KafkaSale{
		TxHash:    ev.TxHash,
		ListingId: sold.ListingId,
		TokenId:   sold.TokenId,
		Seller:    sold.Seller.Hex(),
		Buyer:     sold.Buyer.Hex(),
		Price:     sold.Price,
		Royalty:   sold.Royalty,
		Fee:       sold.Fee,
		Time:      ev.Time,
	})
	if err != nil {
		return err
	}
	return s.kWriters[SaleTopic].Write(ev.TxHash, body)
}

func (s *Domainsplit) updateMetrics() {
	_ = s.view(func(st *state.StateDB) error {
		metricRegistry(s.registry.TotalMinted(st), s.factory.Count(st))
		metricMarket(s.market.ListingCount(st), s.market.FeeBalance(st))
		return nil
	})
}

// checkMappings walks every live token and reports broken domain mappings.
func (s *Domainsplit) checkMappings() (broken int) {
	_ = s.view(func(st *state.StateDB) error {
		total := s.registry.TotalMinted(st)
		for id := uint64(1); id <= total; id++ {
			err := s.registry.CheckMapping(st, id)
			if err == nil || errors.Is(err, schema.ErrUnknownToken) {
				continue
			}
			broken++
			log.Error("s.registry.CheckMapping(st, id)", "err", err, "tokenId", id)
		}
		return nil
	})
	return
}
