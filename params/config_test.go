package params

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Exchange.FeePercent != 10 {
		t.Errorf("fee percent = %d, want 10", cfg.Exchange.FeePercent)
	}
	if cfg.Exchange.FeeAccount == (common.Address{}) {
		t.Error("fee account must not default to the zero address")
	}
	if cfg.Exchange.VaultAddress == (common.Address{}) {
		t.Error("vault address must not default to the zero address")
	}
	if cfg.API.Addr == "" || cfg.Storage.DBPath == "" {
		t.Error("incomplete defaults")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("FEE_PERCENT", "3")
	t.Setenv("FEE_ACCOUNT", "0x00000000000000000000000000000000beef0001")
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("DB_PATH", "/tmp/ev.db")

	cfg := LoadFromEnv("")

	if cfg.Exchange.FeePercent != 3 {
		t.Errorf("fee percent = %d, want 3", cfg.Exchange.FeePercent)
	}
	want := common.HexToAddress("0x00000000000000000000000000000000beef0001")
	if cfg.Exchange.FeeAccount != want {
		t.Errorf("fee account = %s, want %s", cfg.Exchange.FeeAccount.Hex(), want.Hex())
	}
	if cfg.API.Addr != ":9000" {
		t.Errorf("api addr = %s, want :9000", cfg.API.Addr)
	}
	if cfg.Storage.DBPath != "/tmp/ev.db" {
		t.Errorf("db path = %s", cfg.Storage.DBPath)
	}
}

func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("FEE_PERCENT", "150") // out of range
	t.Setenv("FEE_ACCOUNT", "not-an-address")

	cfg := LoadFromEnv("")

	if cfg.Exchange.FeePercent != Default().Exchange.FeePercent {
		t.Errorf("out-of-range fee percent accepted: %d", cfg.Exchange.FeePercent)
	}
	if cfg.Exchange.FeeAccount != Default().Exchange.FeeAccount {
		t.Errorf("invalid fee account accepted: %s", cfg.Exchange.FeeAccount.Hex())
	}
}
