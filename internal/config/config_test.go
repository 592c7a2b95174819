package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_MissingRequired(t *testing.T) {
	cfg := New()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "APP_BASE_URL")
}

func TestValidate_Satisfied(t *testing.T) {
	cfg := New()
	cfg.Database.DSN = "postgres://localhost/test"
	cfg.Server.AppBaseURL = "https://app.example.com"
	assert.NoError(t, cfg.Validate())
}

func TestSourceConfig_ScopesList(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single", "read_products", []string{"read_products"}},
		{"multiple with spaces", "read_products, read_orders,  read_inventory", []string{"read_products", "read_orders", "read_inventory"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SourceConfig{Scopes: tc.in}.ScopesList()
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLoadFile_MissingFileStillValidatesRequiredFields(t *testing.T) {
	// A missing file is a no-op, not a read error; Validate still rejects the
	// still-empty required fields.
	_, err := LoadFile("testdata/does-not-exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
