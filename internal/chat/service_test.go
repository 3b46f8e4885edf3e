package chat

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/servigo-app/servigo-backend/pkg/db/models"
)

type dbTxRunner struct {
	db *gorm.DB
}

func (r *dbTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func setupChatTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS chat_rooms (
  id TEXT PRIMARY KEY,
  engagement_id TEXT NOT NULL,
  customer_id TEXT NOT NULL,
  provider_id TEXT NOT NULL,
  created_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_chat_rooms_engagement ON chat_rooms (engagement_id);`
	require.NoError(t, db.Exec(schema).Error)

	return db
}

func TestOpenRoomCreatesRoom(t *testing.T) {
	db := setupChatTestDB(t)
	svc, err := NewService(&dbTxRunner{db: db})
	require.NoError(t, err)
	ctx := context.Background()

	engagementID := uuid.New()
	customerID := uuid.New()
	providerID := uuid.New()

	room, err := svc.OpenRoom(ctx, engagementID, customerID, providerID)
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, engagementID, room.EngagementID)
	assert.Equal(t, customerID, room.CustomerID)
	assert.Equal(t, providerID, room.ProviderID)
}

func TestOpenRoomIsIdempotent(t *testing.T) {
	db := setupChatTestDB(t)
	svc, err := NewService(&dbTxRunner{db: db})
	require.NoError(t, err)
	ctx := context.Background()

	engagementID := uuid.New()

	first, err := svc.OpenRoom(ctx, engagementID, uuid.New(), uuid.New())
	require.NoError(t, err)
	second, err := svc.OpenRoom(ctx, engagementID, uuid.New(), uuid.New())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&models.ChatRoom{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRoomForEngagementUnknownIsNil(t *testing.T) {
	db := setupChatTestDB(t)
	svc, err := NewService(&dbTxRunner{db: db})
	require.NoError(t, err)

	room, err := svc.RoomForEngagement(context.Background(), db, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, room)
}
