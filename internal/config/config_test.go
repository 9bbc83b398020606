package config_test

import (
	"testing"

	"github.com/arkade-os/custodyd/internal/config"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func loadConfig(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()

	var cfg *config.Config
	var loadErr error
	app := &cli.App{
		Name:  "custodyd",
		Flags: config.Flags,
		Action: func(c *cli.Context) error {
			cfg, loadErr = config.LoadConfig(c)
			return nil
		},
	}
	args = append([]string{"custodyd", "--datadir", t.TempDir()}, args...)
	require.NoError(t, app.Run(args))
	return cfg, loadErr
}

func TestLoadConfig(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg, err := loadConfig(t)
		require.NoError(t, err)
		require.NotNil(t, cfg)
		require.Equal(t, "sqlite", cfg.DbType)
		require.Equal(t, "badger", cfg.EventDbType)
		require.Equal(t, "inmemory", cfg.LiveStoreType)
		require.Equal(t, "gocron", cfg.SchedulerType)
		require.Equal(t, uint32(7080), cfg.Port)
		require.Equal(t, uint32(1000), cfg.MinIncrementBps)
		require.Equal(t, int64(24*60*60), cfg.CustodianUpdateWindow)
		require.True(t, cfg.EnableMetrics)
	})

	t.Run("env vars", func(t *testing.T) {
		t.Setenv("CUSTODYD_PORT", "9000")
		t.Setenv("CUSTODYD_ESCROW_ADDRESS", "vault-escrow")
		t.Setenv("CUSTODYD_BID_BUFFER", "30")

		cfg, err := loadConfig(t)
		require.NoError(t, err)
		require.Equal(t, uint32(9000), cfg.Port)
		require.Equal(t, "vault-escrow", cfg.EscrowAddress)
		require.Equal(t, int64(30), cfg.BidBuffer)
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name        string
			args        []string
			expectedErr string
		}{
			{
				name:        "postgres db without url",
				args:        []string{"--db-type", "postgres"},
				expectedErr: "db type set to 'postgres' but db url is missing",
			},
			{
				name:        "postgres event db without url",
				args:        []string{"--event-db-type", "postgres"},
				expectedErr: "event db type set to 'postgres' but event db url is missing",
			},
			{
				name:        "redis live store without url",
				args:        []string{"--live-store-type", "redis"},
				expectedErr: "live store type set to 'redis' but redis url is missing",
			},
		}
		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				cfg, err := loadConfig(t, f.args...)
				require.EqualError(t, err, f.expectedErr)
				require.Nil(t, cfg)
			})
		}
	})
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg, err := loadConfig(t, "--db-type", "badger", "--scheduler-type", "ticker")
		require.NoError(t, err)

		err = cfg.Validate()
		require.NoError(t, err)

		svc, err := cfg.AppService()
		require.NoError(t, err)
		require.NotNil(t, svc)
		defer svc.Stop()

		adminSvc, err := cfg.AdminService()
		require.NoError(t, err)
		require.NotNil(t, adminSvc)
		require.NotNil(t, cfg.RoleAuthority())
		require.NotNil(t, cfg.Metrics())
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := []struct {
			name        string
			args        []string
			expectedErr string
		}{
			{
				name:        "db type",
				args:        []string{"--db-type", "mysql"},
				expectedErr: "db type not supported",
			},
			{
				name:        "event db type",
				args:        []string{"--event-db-type", "sqlite"},
				expectedErr: "event db type not supported",
			},
			{
				name:        "scheduler type",
				args:        []string{"--scheduler-type", "block"},
				expectedErr: "scheduler type not supported",
			},
			{
				name:        "live store type",
				args:        []string{"--live-store-type", "memcached"},
				expectedErr: "live store type not supported",
			},
			{
				name:        "min increment",
				args:        []string{"--min-increment-bps", "10001"},
				expectedErr: "min increment must be at most 10000 bps",
			},
			{
				name:        "fraction supply",
				args:        []string{"--total-fraction-supply", "0"},
				expectedErr: "total fraction supply must be positive",
			},
			{
				name:        "update window",
				args:        []string{"--custodian-update-window", "0"},
				expectedErr: "custodian update window must be positive",
			},
			{
				name:        "escrow address",
				args:        []string{"--escrow-address", ""},
				expectedErr: "missing escrow address",
			},
			{
				name:        "missing roles file",
				args:        []string{"--roles-file", "/nonexistent/roles.json"},
				expectedErr: "failed to load roles file",
			},
		}
		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				cfg, err := loadConfig(t, f.args...)
				require.NoError(t, err)

				err = cfg.Validate()
				require.ErrorContains(t, err, f.expectedErr)
			})
		}
	})
}
