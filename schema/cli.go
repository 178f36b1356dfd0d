package schema

type Config struct {
	Port       string `yaml:"port"`
	MetricPort string `yaml:"metricPort"`
	SentryDsn  string `yaml:"sentryDsn"`

	Mysql     string `yaml:"mysql"`
	UseSqlite bool   `yaml:"useSqlite"`
	SqliteDir string `yaml:"sqliteDir"`

	BoltDir   string    `yaml:"boltDir"`
	S3KV      S3KV      `yaml:"s3KV"`
	MongoDBKV MongoDBKV `yaml:"mongoDBKV"`

	Kafka     Kafka     `yaml:"kafka"`
	RateLimit RateLimit `yaml:"rateLimit"`
	CacheTTL  int       `yaml:"cacheTTL"` // seconds

	// UnsignedCaller trusts X-Caller without a signature; local development only
	UnsignedCaller bool `yaml:"unsignedCaller"`

	Genesis Genesis `yaml:"genesis"`
}

type S3KV struct {
	UseS3     bool   `yaml:"useS3"`
	AccKey    string `yaml:"accKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
}

type MongoDBKV struct {
	UseMongoDB bool   `yaml:"useMongoDB"`
	Uri        string `yaml:"uri"`
	Database   string `yaml:"database"`
}

type Kafka struct {
	Start bool   `yaml:"start"`
	Uri   string `yaml:"uri"`
}

// RateLimit period: "S","M","H","D"
type RateLimit struct {
	Limit     int      `yaml:"limit"`
	Period    string   `yaml:"period"`
	Whitelist []string `yaml:"whitelist"`
}

// Genesis configures the contracts deployed on first start.
type Genesis struct {
	Admin             string            `yaml:"admin"`
	Treasury          string            `yaml:"treasury"`
	FeeTreasury       string            `yaml:"feeTreasury"`
	MarketplaceFeeBps uint16            `yaml:"marketplaceFeeBps"`
	DefaultRoyaltyBps uint16            `yaml:"defaultRoyaltyBps"`
	RefundExcess      bool              `yaml:"refundExcess"`
	Minters           []string          `yaml:"minters"`
	Alloc             map[string]string `yaml:"alloc"` // address -> wei
}
