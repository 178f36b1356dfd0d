package schema

var (
	// world state
	AccountBalanceBucket = "account-balance-bucket" // key: address, val: big.Int bytes
	AccountNonceBucket   = "account-nonce-bucket"   // key: address, val: uint64
	AccountCodeBucket    = "account-code-bucket"    // key: address, val: contract kind
	ConstantsBucket      = "constants-bucket"       // genesis contract addresses, chain height

	// contract storage
	RoleBucket     = "role-bucket"     // key: contract/role/account, val: 0x01
	LockBucket     = "lock-bucket"     // key: contract, val: 0x01 while an entry point runs
	SplitterBucket = "splitter-bucket" // key: splitter/field[/account[/token]]
	FactoryBucket  = "factory-bucket"  // key: factory/field[/index]
	RegistryBucket = "registry-bucket" // key: registry/field[/id|name|owner]
	MarketBucket   = "market-bucket"   // key: market/field[/listingId]
	TokenBucket    = "erc20-bucket"    // key: token/field[/owner[/spender]]
)

func AllBuckets() []string {
	return []string{
		AccountBalanceBucket,
		AccountNonceBucket,
		AccountCodeBucket,
		ConstantsBucket,
		RoleBucket,
		LockBucket,
		SplitterBucket,
		FactoryBucket,
		RegistryBucket,
		MarketBucket,
		TokenBucket,
	}
}
