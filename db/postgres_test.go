package db

import (
	"context"
	"os"
	"strconv"
	"testing"

	"location-service/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// openTestDB 连接 DB_TEST_DSN 指定的 PostgreSQL, 未设置时跳过.
// 每次都会清空相关表.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("DB_TEST_DSN")
	if dsn == "" {
		t.Skip("DB_TEST_DSN not set")
	}
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&model.User{}, &model.NamedPoint{}, &model.SearchHistory{}))
	require.NoError(t, conn.Exec("TRUNCATE users, named_points, search_histories RESTART IDENTITY").Error)
	return conn
}

func TestSeedPointsOnlyWhenEmpty(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	seed := make([]model.NamedPoint, 0, 12)
	for i := 1; i <= 12; i++ {
		id := strconv.Itoa(i)
		seed = append(seed, model.NamedPoint{
			ID:          id,
			Name:        "Point " + id,
			Coordinates: model.Coordinates{Lat: 9 + float64(i)/1000, Lon: 38.75},
			Category:    model.CategoryLandmark,
		})
	}
	require.NoError(t, SeedPoints(conn, seed))

	// 表不为空时不再写入
	require.NoError(t, SeedPoints(conn, []model.NamedPoint{{ID: "99", Name: "Extra"}}))

	points, err := LoadPoints(ctx, conn)
	require.NoError(t, err)
	require.Len(t, points, 12)
	for i, p := range points {
		assert.Equal(t, strconv.Itoa(i+1), p.ID, "seed order kept past id 9")
	}
}

func TestGormUserStore(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	store := NewGormUserStore(conn)

	require.NoError(t, store.Create(ctx, &model.User{Username: "admin", Password: "hash", Roles: []string{"admin"}}))
	assert.ErrorIs(t, store.Create(ctx, &model.User{Username: "admin", Password: "other"}), ErrDuplicateUser)

	u, err := store.FindByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.True(t, u.HasRole("admin"))

	_, err = store.FindByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestHistoryRecentIsDistinctNewestFirst(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	h := NewHistoryStore(conn)

	bole := model.Coordinates{Lat: 8.9806, Lon: 38.7998}
	require.NoError(t, h.Record(ctx, "Bole", nil))
	require.NoError(t, h.Record(ctx, "Hilton", nil))
	require.NoError(t, h.Record(ctx, "Bole", &bole))
	require.NoError(t, h.Record(ctx, "  ", nil))

	recent, err := h.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "Bole", recent[0].Query)
	require.NotNil(t, recent[0].Lat)
	assert.Equal(t, bole.Lat, *recent[0].Lat)
	assert.Equal(t, "Hilton", recent[1].Query)

	recent, err = h.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}
