package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "minimal",
			cfg:  Config{DatabaseURL: "postgres://localhost/dine"},
		},
		{
			name:    "no database",
			cfg:     Config{},
			wantErr: "database URL is required",
		},
		{
			name: "payments without secret",
			cfg: Config{
				DatabaseURL: "postgres://localhost/dine",
				Payment:     PaymentConfig{KeyID: "rzp_test"},
			},
			wantErr: "payment key secret is required",
		},
		{
			name: "payments configured",
			cfg: Config{
				DatabaseURL: "postgres://localhost/dine",
				Payment:     PaymentConfig{KeyID: "rzp_test", KeySecret: "secret"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPaymentConfig_Enabled(t *testing.T) {
	assert.False(t, PaymentConfig{}.Enabled())
	assert.True(t, PaymentConfig{KeyID: "rzp_test"}.Enabled())
}

func TestConfig_ApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/dine")
	t.Setenv("RABBITMQ_URL", "amqp://platform/")
	t.Setenv("PORT", "9090")

	cfg := Config{Addr: "0.0.0.0:8080"}
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://platform/dine", cfg.DatabaseURL)
	assert.Equal(t, "amqp://platform/", cfg.AMQP.URL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
}

func TestConfig_ExplicitValuesWin(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/dine")
	t.Setenv("PORT", "9090")

	cfg := Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit/dine"}
	cfg.applyPlatformDefaults()

	assert.Equal(t, "postgres://explicit/dine", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}
