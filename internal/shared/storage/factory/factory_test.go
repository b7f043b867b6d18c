package factory

import (
	"context"
	"testing"

	"catalog-sync/internal/shared/model"
	"catalog-sync/internal/shared/storage/dbutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewStoreFromDSN_SQLite 工厂产出的 SQLite 存储可直接读写，
// 自动建表在工厂内完成。
func TestNewStoreFromDSN_SQLite(t *testing.T) {
	store, err := NewStoreFromDSN(dbutil.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.PutScheduleConfig(ctx, model.DefaultScheduleConfig()))
	cfg, err := store.GetScheduleConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ScheduleConfigID, cfg.ID)
}

func TestNewStoreFromDSN_UnsupportedDriver(t *testing.T) {
	_, err := NewStoreFromDSN(dbutil.DriverType("oracle"), "oracle://localhost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestMongoDatabaseFromDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{"路径段携带库名", "mongodb://localhost:27017/catalog_sync_test", "catalog_sync_test"},
		{"无路径段时回退默认库名", "mongodb://localhost:27017", DefaultMongoDatabase},
		{"空路径段时回退默认库名", "mongodb://localhost:27017/", DefaultMongoDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mongoDatabaseFromDSN(tt.dsn)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
