package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/everFinance/domainsplit"
	"github.com/everFinance/domainsplit/schema"
	"github.com/getsentry/sentry-go"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func main() {
	app := &cli.App{
		Name: "domainsplit",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "", Usage: "yaml config file, flags below override it", EnvVars: []string{"CONFIG"}},
			&cli.StringFlag{Name: "db_dir", Value: "./data/bolt", Usage: "bolt db dir path", EnvVars: []string{"DB_DIR"}},
			&cli.StringFlag{Name: "mysql", Value: "root@tcp(127.0.0.1:3306)/domainsplit?charset=utf8mb4&parseTime=True&loc=Local", Usage: "mysql dsn", EnvVars: []string{"MYSQL"}},
			&cli.BoolFlag{Name: "use_sqlite", Value: false, Usage: "index into sqlite instead of mysql", EnvVars: []string{"USE_SQLITE"}},
			&cli.StringFlag{Name: "sqlite_dir", Value: "./data/sqlite", EnvVars: []string{"SQLITE_DIR"}},
			&cli.StringFlag{Name: "sentry_dsn", Value: "", EnvVars: []string{"SENTRY_DSN"}},
			&cli.StringFlag{Name: "kafka_uri", Value: "", Usage: "publish events to kafka when set", EnvVars: []string{"KAFKA_URI"}},
			&cli.BoolFlag{Name: "unsigned_caller", Value: false, Usage: "trust X-Caller without a signature, local development only", EnvVars: []string{"UNSIGNED_CALLER"}},

			&cli.StringFlag{Name: "port", Value: ":8080", EnvVars: []string{"PORT"}},
			&cli.StringFlag{Name: "metric_port", Value: ":8081", EnvVars: []string{"METRIC_PORT"}},
		},
		Action: run,
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (cfg schema.Config, err error) {
	if path := c.String("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	if cfg.BoltDir == "" || c.IsSet("db_dir") {
		cfg.BoltDir = c.String("db_dir")
	}
	if cfg.Mysql == "" || c.IsSet("mysql") {
		cfg.Mysql = c.String("mysql")
	}
	if c.IsSet("use_sqlite") {
		cfg.UseSqlite = c.Bool("use_sqlite")
	}
	if c.IsSet("unsigned_caller") {
		cfg.UnsignedCaller = c.Bool("unsigned_caller")
	}
	if cfg.SqliteDir == "" || c.IsSet("sqlite_dir") {
		cfg.SqliteDir = c.String("sqlite_dir")
	}
	if c.IsSet("sentry_dsn") {
		cfg.SentryDsn = c.String("sentry_dsn")
	}
	if c.IsSet("kafka_uri") {
		cfg.Kafka = schema.Kafka{Start: true, Uri: c.String("kafka_uri")}
	}
	if cfg.Port == "" || c.IsSet("port") {
		cfg.Port = c.String("port")
	}
	if cfg.MetricPort == "" || c.IsSet("metric_port") {
		cfg.MetricPort = c.String("metric_port")
	}
	return cfg, nil
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.SentryDsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDsn}); err != nil {
			return err
		}
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	s := domainsplit.New(cfg)
	s.Run(cfg.Port)

	<-signals
	s.Close()
	return nil
}
