package db

import (
	"testing"

	"smallbiznis-reward/pkg/config"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
)

func TestDialect(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Host = "db"
	cfg.Database.Port = "5432"
	cfg.Database.DBNAME = "reward"

	d, err := Dialect(cfg)
	require.NoError(t, err)
	require.IsType(t, &postgres.Dialector{}, d)
	require.Equal(t, "reward", getDBNameFromDialector(d))

	cfg.Database.Type = "mysql"
	d, err = Dialect(cfg)
	require.NoError(t, err)
	require.IsType(t, &mysql.Dialector{}, d)
	require.Equal(t, "reward", getDBNameFromDialector(d))

	cfg.Database.Type = "sqlite"
	d, err = Dialect(cfg)
	require.NoError(t, err)
	require.IsType(t, &sqlite.Dialector{}, d)

	cfg.Database.Type = "oracle"
	_, err = Dialect(cfg)
	require.Error(t, err)
}
