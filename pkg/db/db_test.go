package db

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/perkforge/couponvault/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestFromAppConfig(t *testing.T) {
	cfg := FromAppConfig(config.Config{
		DBType:            "postgres",
		DBHost:            "db.internal",
		DBPort:            "5432",
		DBName:            "couponvault",
		DBUser:            "vault",
		DBPassword:        "secret",
		DBSSLMode:         "require",
		DBMaxIdleConn:     5,
		DBMaxOpenConn:     25,
		DBConnMaxLifetime: 300,
		DBConnMaxIdleTime: 60,
	})

	assert.Equal(t, "postgres", cfg.Type)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, "couponvault", cfg.Name)
	assert.Equal(t, "require", cfg.SSLMode)
	assert.Equal(t, 25, cfg.MaxOpenConn)
	assert.Equal(t, 300, cfg.ConnMaxLifetime)
}

func TestDialect(t *testing.T) {
	_, err := Dialect(Config{Type: "sqlite", Name: "file::memory:?cache=shared"})
	require.NoError(t, err)

	_, err = Dialect(Config{Type: "postgres", Host: "localhost", Port: "5432"})
	require.NoError(t, err)

	_, err = Dialect(Config{Type: "oracle"})
	assert.Error(t, err)
}

func TestApplyPlugins(t *testing.T) {
	gdb, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, applyPlugins(gdb, t.Name()))

	// Traced sessions still execute queries.
	var one int
	require.NoError(t, gdb.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}
