package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/policy"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: sqlite\n  dsn: test.db\n")

	cfg, _, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, cfg.Approval.TTL)
	assert.Equal(t, 50, cfg.Import.MaxErrors)
	assert.Equal(t, 1, cfg.Import.HeaderRows)
	assert.False(t, cfg.Policy.NegativeStock.Allowed)
}

func TestLoad_PolicySection(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  dsn: test.db
policy:
  negative_stock:
    allowed: true
    max_threshold: 25
  reason_required: [adjust, Consume]
  approval_thresholds:
    stock_out: 100
`)

	cfg, _, err := Load(path)
	require.NoError(t, err)

	set, err := cfg.Policy.Set()
	require.NoError(t, err)
	assert.True(t, set.NegativeStock.Allowed)
	require.NotNil(t, set.NegativeStock.MaxThreshold)
	assert.Equal(t, int64(25), *set.NegativeStock.MaxThreshold)
	assert.True(t, set.ReasonRequired[policy.PurposeAdjust])
	assert.True(t, set.ReasonRequired[policy.PurposeConsume])
	assert.Equal(t, int64(100), set.ApprovalThresholds[model.ActionStockOut])
}

func TestLoad_RejectsUnknownAction(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  dsn: test.db
policy:
  approval_thresholds:
    teleport: 5
`)

	_, _, err := Load(path)
	assert.ErrorContains(t, err, "teleport")
}

func TestPolicySource_Refresh(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: sqlite\n  dsn: test.db\n")
	_, v, err := Load(path)
	require.NoError(t, err)

	src, err := NewPolicySource(v)
	require.NoError(t, err)
	before := src.Current()
	assert.False(t, before.NegativeStock.Allowed)

	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: sqlite
  dsn: test.db
policy:
  negative_stock:
    allowed: true
`), 0o600))
	require.NoError(t, src.Refresh())

	assert.True(t, src.Current().NegativeStock.Allowed)
	assert.False(t, before.NegativeStock.Allowed, "earlier Set is not mutated")
}

func TestPolicySource_RefreshErrorKeepsPrevious(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: sqlite\n  dsn: test.db\npolicy:\n  approval_thresholds:\n    stock_out: 7\n")
	_, v, err := Load(path)
	require.NoError(t, err)
	src, err := NewPolicySource(v)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("policy:\n  approval_thresholds:\n    bogus: 1\n"), 0o600))
	assert.Error(t, src.Refresh())
	assert.Equal(t, int64(7), src.Current().ApprovalThresholds[model.ActionStockOut])
}
