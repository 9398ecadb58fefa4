package persistence

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
)

// newMockDatabase creates a Database instance with a mocked postgres connection
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	return &Database{DB: gormDB}, mock, mockDB
}

// newSQLiteConnector opens an in-memory sqlite database with the full schema
func newSQLiteConnector(t *testing.T) *Connector {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection, otherwise every pooled connection gets its own empty :memory: database
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(models.All()...))

	conn := NewConnectorWithDB(db)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestDatabase_PingAndStats(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	mock.ExpectPing()
	require.NoError(t, db.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	require.Error(t, db.Ping(context.Background()))

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, stats.OpenConnections, stats.InUse+stats.Idle)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnector_LazyOpen(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	var opens atomic.Int32
	var pluginCalls atomic.Int32
	conn := NewConnector(&config.DatabaseConfig{}, nil,
		WithOpenFunc(func(ctx context.Context) (*Database, error) {
			opens.Add(1)
			return db, nil
		}),
		WithPlugin(func(*gorm.DB) error {
			pluginCalls.Add(1)
			return nil
		}),
	)

	stats, err := conn.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.OpenConnections)
	assert.Zero(t, opens.Load(), "constructor must not connect")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := conn.DB(context.Background())
			assert.NoError(t, err)
			assert.Same(t, db.DB, got)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, opens.Load())
	assert.EqualValues(t, 1, pluginCalls.Load())

	mock.ExpectPing()
	assert.NoError(t, conn.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnector_RetriesAfterFailure(t *testing.T) {
	db, _, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	attempts := 0
	conn := NewConnector(&config.DatabaseConfig{}, nil, WithOpenFunc(func(ctx context.Context) (*Database, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("database starting up")
		}
		return db, nil
	}))

	_, err := conn.DB(context.Background())
	require.Error(t, err)

	got, err := conn.DB(context.Background())
	require.NoError(t, err)
	assert.Same(t, db.DB, got)
	assert.Equal(t, 2, attempts)
}

func TestConnector_PluginFailure(t *testing.T) {
	db, _, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	conn := NewConnector(&config.DatabaseConfig{}, nil,
		WithOpenFunc(func(ctx context.Context) (*Database, error) { return db, nil }),
		WithPlugin(func(*gorm.DB) error { return errors.New("plugin boom") }),
	)

	_, err := conn.DB(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugin boom")
}

func TestConnector_Close(t *testing.T) {
	conn := newSQLiteConnector(t)

	_, err := conn.DB(context.Background())
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	_, err = conn.DB(context.Background())
	assert.ErrorIs(t, err, ErrConnectorClosed)
	assert.NoError(t, conn.Close())
}
