package domainsplit

import (
	"os"
	"path"

	"github.com/everFinance/domainsplit/schema"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	sqliteName = "domainsplit.db"
)

type Wdb struct {
	Db *gorm.DB
}

func NewMysqlDb(dsn string) *Wdb {
	logLevel := logger.Error
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:          logger.Default.LogMode(logLevel),
		CreateBatchSize: 200,
	})
	if err != nil {
		panic(err)
	}
	log.Info("connect mysql db success")
	return &Wdb{Db: db}
}

func NewSqliteDb(dbDir string) *Wdb {
	if err := os.MkdirAll(dbDir, os.ModePerm); err != nil {
		panic(err)
	}
	db, err := gorm.Open(sqlite.Open(path.Join(dbDir, sqliteName)), &gorm.Config{
		Logger:          logger.Default.LogMode(logger.Silent),
		CreateBatchSize: 200,
	})
	if err != nil {
		panic(err)
	}
	log.Info("connect sqlite db success")
	return &Wdb{Db: db}
}

func (w *Wdb) Migrate() error {
	return w.Db.AutoMigrate(&schema.EventLog{}, &schema.SaleRecord{})
}

// InsertReceipt stores the events and sales of one transaction together.
func (w *Wdb) InsertReceipt(events []schema.EventLog, sales []schema.SaleRecord) error {
	return w.Db.Transaction(func(tx *gorm.DB) error {
		if len(events) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&events).Error; err != nil {
				return err
			}
		}
		if len(sales) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&sales).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (w *Wdb) GetSales(nft string, tokenId uint64) ([]schema.SaleRecord, error) {
	res := make([]schema.SaleRecord, 0)
	err := w.Db.Where("nft = ? and token_id = ?", nft, tokenId).Order("id desc").Find(&res).Error
	return res, err
}

func (w *Wdb) GetUnpublishedEvents(limit int) ([]schema.EventLog, error) {
	res := make([]schema.EventLog, 0, limit)
	err := w.Db.Where("published = ?", false).Order("id asc").Limit(limit).Find(&res).Error
	return res, err
}

func (w *Wdb) SetEventsPublished(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return w.Db.Model(&schema.EventLog{}).Where("id in ?", ids).Update("published", true).Error
}

func (w *Wdb) CountEvents(name string) (n int64, err error) {
	err = w.Db.Model(&schema.EventLog{}).Where("name = ?", name).Count(&n).Error
	return
}

func (w *Wdb) Close() {
	sql, err := w.Db.DB()
	if err == nil {
		sql.Close()
	}
}
