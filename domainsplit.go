package domainsplit

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/everFinance/domainsplit/acl"
	"github.com/everFinance/domainsplit/chain"
	dcommon "github.com/everFinance/domainsplit/common"
	"github.com/everFinance/domainsplit/market"
	"github.com/everFinance/domainsplit/registry"
	"github.com/everFinance/domainsplit/schema"
	"github.com/everFinance/domainsplit/splitter"
	"github.com/everFinance/domainsplit/state"
	"github.com/everFinance/domainsplit/token"
	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron"
)

var log = dcommon.NewLog("domainsplit")

const defaultCacheTTL = 10 * time.Minute

type Domainsplit struct {
	store     *Store
	chain     *chain.Chain
	engine    *gin.Engine
	scheduler *gocron.Scheduler
	wdb       *Wdb
	cache     *Cache
	kWriters  map[string]msgWriter

	config    schema.Config
	contracts schema.Contracts
	factory   *splitter.Factory
	registry  *registry.Registry
	market    *market.Market
}

func New(cfg schema.Config) *Domainsplit {
	var (
		KVDb *Store
		err  error
	)
	switch {
	case cfg.S3KV.UseS3:
		KVDb, err = NewS3Store(cfg.S3KV.AccKey, cfg.S3KV.SecretKey, cfg.S3KV.Region, cfg.S3KV.Bucket, cfg.S3KV.Endpoint)
	case cfg.MongoDBKV.UseMongoDB:
		KVDb, err = NewMongoStore(cfg.MongoDBKV.Uri, cfg.MongoDBKV.Database)
	default:
		KVDb, err = NewBoltStore(cfg.BoltDir)
	}
	if err != nil {
		panic(err)
	}

	var wdb *Wdb
	if cfg.UseSqlite {
		wdb = NewSqliteDb(cfg.SqliteDir)
	} else {
		wdb = NewMysqlDb(cfg.Mysql)
	}
	if err = wdb.Migrate(); err != nil {
		panic(err)
	}

	ttl := defaultCacheTTL
	if cfg.CacheTTL > 0 {
		ttl = time.Duration(cfg.CacheTTL) * time.Second
	}
	c, err := NewCache(ttl)
	if err != nil {
		panic(err)
	}

	var kWriters map[string]msgWriter
	if cfg.Kafka.Start {
		kWriters, err = NewKWriters(cfg.Kafka.Uri)
		if err != nil {
			panic(err)
		}
	}

	if cfg.UnsignedCaller {
		log.Warn("transaction callers are trusted without signatures")
	}
	s := &Domainsplit{
		store:     KVDb,
		chain:     newChain(KVDb),
		engine:    gin.Default(),
		scheduler: gocron.NewScheduler(time.UTC),
		wdb:       wdb,
		cache:     c,
		kWriters:  kWriters,
		config:    cfg,
	}
	if err := s.initGenesis(cfg.Genesis); err != nil {
		panic(err)
	}
	s.registerRoutes()
	return s
}

func newChain(store *Store) *chain.Chain {
	c := chain.New(store.KVDb)
	splitter.Install(c)
	registry.Install(c)
	market.Install(c)
	token.Install(c)
	return c
}

func (s *Domainsplit) Run(port string) {
	if s.config.MetricPort != "" {
		dcommon.NewMetricServer(s.config.MetricPort)
	}
	go s.runAPI(port)
	go s.runJobs()
}

func (s *Domainsplit) Close() {
	s.scheduler.Stop()
	for _, w := range s.kWriters {
		w.Close()
	}
	s.wdb.Close()
	if err := s.store.Close(); err != nil {
		log.Error("s.store.Close()", "err", err)
	}
}

// Engine is the http handler of the node api.
func (s *Domainsplit) Engine() *gin.Engine {
	return s.engine
}

func (s *Domainsplit) Contracts() schema.Contracts {
	return s.contracts
}

// initGenesis deploys the factory, registry and market on first start and
// reloads their addresses afterwards. Alloc, deploys, role grants and the
// contracts record commit as one batch, so a failed genesis leaves nothing
// behind and is never half replayed.
func (s *Domainsplit) initGenesis(g schema.Genesis) error {
	contracts, err := s.store.LoadContracts()
	if err == nil {
		s.bind(contracts)
		log.Info("load genesis contracts", "registry", contracts.Registry, "market", contracts.Market)
		return nil
	}
	if !errors.Is(err, schema.ErrNotExist) {
		return err
	}

	admin, err := parseAddress(g.Admin)
	if err != nil {
		return fmt.Errorf("genesis admin: %w", err)
	}
	treasury, err := parseAddress(g.Treasury)
	if err != nil {
		return fmt.Errorf("genesis treasury: %w", err)
	}
	feeTreasury, err := parseAddress(g.FeeTreasury)
	if err != nil {
		return fmt.Errorf("genesis feeTreasury: %w", err)
	}
	alloc := make(map[common.Address]*big.Int, len(g.Alloc))
	for addr, wei := range g.Alloc {
		to, err := parseAddress(addr)
		if err != nil {
			return fmt.Errorf("genesis alloc: %w", err)
		}
		amount, ok := new(big.Int).SetString(wei, 10)
		if !ok || amount.Sign() < 0 {
			return fmt.Errorf("%w: alloc %s", schema.ErrInvalidAmount, wei)
		}
		alloc[to] = amount
	}
	minters := []common.Address{admin}
	for _, h := range g.Minters {
		addr, err := parseAddress(h)
		if err != nil {
			return fmt.Errorf("genesis minter: %w", err)
		}
		minters = append(minters, addr)
	}

	err = s.chain.Batch(func() error {
		for to, amount := range alloc {
			if err := s.chain.Alloc(to, amount); err != nil {
				return err
			}
		}
		f, err := splitter.DeployFactory(s.chain, admin)
		if err != nil {
			return err
		}
		r, err := registry.Deploy(s.chain, admin, schema.RegistryConfig{
			Treasury:          treasury,
			SplitterFactory:   f.Address(),
			DefaultRoyaltyBps: g.DefaultRoyaltyBps,
		})
		if err != nil {
			return err
		}
		m, err := market.Deploy(s.chain, admin, schema.MarketConfig{
			FeeTreasury:       feeTreasury,
			MarketplaceFeeBps: g.MarketplaceFeeBps,
			RefundExcess:      g.RefundExcess,
		})
		if err != nil {
			return err
		}
		contracts = schema.Contracts{
			SplitterFactory: f.Address(),
			Registry:        r.Address(),
			Market:          m.Address(),
		}
		_, err = s.chain.Transact(admin, r.Address(), nil, func(ctx *chain.Context) error {
			for _, minter := range minters {
				if err := r.ACL().Grant(ctx, acl.MinterRole, minter); err != nil {
					return err
				}
			}
			if err := r.ACL().Grant(ctx, acl.SalesRecorderRole, m.Address()); err != nil {
				return err
			}
			return ctx.State.SetJSON(schema.ConstantsBucket, contractsKey, contracts)
		})
		return err
	})
	if err != nil {
		return err
	}
	s.bind(contracts)
	log.Info("deploy genesis contracts", "admin", admin, "factory", contracts.SplitterFactory, "registry", contracts.Registry, "market", contracts.Market)
	return nil
}

func (s *Domainsplit) bind(c schema.Contracts) {
	s.contracts = c
	s.factory = splitter.FactoryAt(c.SplitterFactory)
	s.registry = registry.At(c.Registry)
	s.market = market.At(c.Market)
}

func (s *Domainsplit) view(fn func(st *state.StateDB) error) error {
	return s.chain.View(fn)
}

func parseAddress(h string) (common.Address, error) {
	if !common.IsHexAddress(h) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, h)
	}
	return common.HexToAddress(h), nil
}
