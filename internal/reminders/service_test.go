package reminders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/servigo-app/servigo-backend/internal/policy"
	"github.com/servigo-app/servigo-backend/pkg/db/models"
	"github.com/servigo-app/servigo-backend/pkg/enums"
)

type dbTxRunner struct {
	db *gorm.DB
}

func (r *dbTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func setupRemindersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS reminders (
  id TEXT PRIMARY KEY,
  engagement_id TEXT NOT NULL,
  kind TEXT NOT NULL,
  recipient_id TEXT NOT NULL,
  due_at DATETIME NOT NULL,
  sent_at DATETIME,
  created_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_reminders_engagement_kind ON reminders (engagement_id, kind);`
	require.NoError(t, db.Exec(schema).Error)

	return db
}

func newRemindersFixture(t *testing.T) (*Service, *gorm.DB, time.Time) {
	t.Helper()

	db := setupRemindersTestDB(t)
	svc, err := NewService(&dbTxRunner{db: db}, policy.Default())
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, db, now
}

func TestScheduleAppointmentReminderUsesLeadTime(t *testing.T) {
	svc, db, now := newRemindersFixture(t)
	ctx := context.Background()

	engagementID := uuid.New()
	appointmentAt := now.Add(48 * time.Hour)

	require.NoError(t, svc.ScheduleAppointmentReminder(ctx, engagementID, uuid.New(), appointmentAt))

	var rows []models.Reminder
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.ReminderKindAppointment, rows[0].Kind)
	assert.True(t, rows[0].DueAt.Equal(appointmentAt.Add(-24*time.Hour)))
}

func TestScheduleAppointmentReminderSkipsInsideLeadWindow(t *testing.T) {
	svc, db, now := newRemindersFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.ScheduleAppointmentReminder(ctx, uuid.New(), uuid.New(), now.Add(6*time.Hour)))

	var count int64
	require.NoError(t, db.Model(&models.Reminder{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestScheduleAppointmentReminderIsIdempotent(t *testing.T) {
	svc, db, now := newRemindersFixture(t)
	ctx := context.Background()

	engagementID := uuid.New()
	appointmentAt := now.Add(48 * time.Hour)

	require.NoError(t, svc.ScheduleAppointmentReminder(ctx, engagementID, uuid.New(), appointmentAt))
	require.NoError(t, svc.ScheduleAppointmentReminder(ctx, engagementID, uuid.New(), appointmentAt))

	var count int64
	require.NoError(t, db.Model(&models.Reminder{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestFindDueReturnsOnlyPastUnsent(t *testing.T) {
	svc, db, now := newRemindersFixture(t)
	ctx := context.Background()

	dueID := uuid.New()
	require.NoError(t, svc.ScheduleRecurrenceReminder(ctx, dueID, uuid.New(), now.Add(-time.Hour)))
	require.NoError(t, svc.ScheduleRecurrenceReminder(ctx, uuid.New(), uuid.New(), now.Add(time.Hour)))

	sentID := uuid.New()
	require.NoError(t, svc.ScheduleRecurrenceReminder(ctx, sentID, uuid.New(), now.Add(-2*time.Hour)))
	var sent models.Reminder
	require.NoError(t, db.Where("engagement_id = ?", sentID).First(&sent).Error)
	claimed, err := svc.MarkSent(ctx, sent.ID, now)
	require.NoError(t, err)
	require.True(t, claimed)

	due, err := svc.FindDue(ctx, db, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, dueID, due[0].EngagementID)
}

func TestMarkSentClaimsOnce(t *testing.T) {
	svc, db, now := newRemindersFixture(t)
	ctx := context.Background()

	engagementID := uuid.New()
	require.NoError(t, svc.ScheduleRecurrenceReminder(ctx, engagementID, uuid.New(), now.Add(-time.Hour)))
	var reminder models.Reminder
	require.NoError(t, db.Where("engagement_id = ?", engagementID).First(&reminder).Error)

	first, err := svc.MarkSent(ctx, reminder.ID, now)
	require.NoError(t, err)
	second, err := svc.MarkSent(ctx, reminder.ID, now)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
}

func TestCancelForEngagementRemovesUnsent(t *testing.T) {
	svc, db, now := newRemindersFixture(t)
	ctx := context.Background()

	engagementID := uuid.New()
	require.NoError(t, svc.ScheduleAppointmentReminder(ctx, engagementID, uuid.New(), now.Add(48*time.Hour)))

	require.NoError(t, svc.CancelForEngagement(ctx, engagementID))

	var count int64
	require.NoError(t, db.Model(&models.Reminder{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}
