package params

import (
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Token struct {
	// Deployer receives the entire token supply at startup.
	Deployer common.Address
}

type Exchange struct {
	// FeeAccount is credited with every taker-paid fee. Immutable
	// after startup.
	FeeAccount common.Address
	// FeePercent of amountGet, integer percent (10 = 10%).
	FeePercent int64
	// VaultAddress is the vault's identity on the ledger; users
	// approve it before depositing tokens.
	VaultAddress common.Address
}

type API struct {
	Addr string
}

type Storage struct {
	// DBPath holds the pebble event store.
	DBPath string
	// AuditPath, when non-empty, mirrors events to a newline-JSON file.
	AuditPath string
}

type Config struct {
	Token    Token
	Exchange Exchange
	API      API
	Storage  Storage
}

func Default() Config {
	return Config{
		Token: Token{
			Deployer: common.HexToAddress("0x00000000000000000000000000000000dead0001"),
		},
		Exchange: Exchange{
			FeeAccount:   common.HexToAddress("0x00000000000000000000000000000000dead0002"),
			FeePercent:   10,
			VaultAddress: common.HexToAddress("0x00000000000000000000000000000000dead0003"),
		},
		API: API{
			Addr: ":8545",
		},
		Storage: Storage{
			DBPath:    "data/events.db",
			AuditPath: "data/audit.log",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("TOKEN_DEPLOYER"); common.IsHexAddress(v) {
		cfg.Token.Deployer = common.HexToAddress(v)
	}
	if v := os.Getenv("FEE_ACCOUNT"); common.IsHexAddress(v) {
		cfg.Exchange.FeeAccount = common.HexToAddress(v)
	}
	if v := os.Getenv("VAULT_ADDRESS"); common.IsHexAddress(v) {
		cfg.Exchange.VaultAddress = common.HexToAddress(v)
	}
	if v := os.Getenv("FEE_PERCENT"); v != "" {
		if p, err := strconv.ParseInt(v, 10, 64); err == nil && p >= 0 && p <= 100 {
			cfg.Exchange.FeePercent = p
		}
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("AUDIT_LOG"); v != "" {
		cfg.Storage.AuditPath = v
	}

	return cfg
}
