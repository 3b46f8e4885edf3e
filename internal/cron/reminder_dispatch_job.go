package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/servigo-app/servigo-backend/internal/reminders"
	"github.com/servigo-app/servigo-backend/pkg/db/models"
	"github.com/servigo-app/servigo-backend/pkg/enums"
	"github.com/servigo-app/servigo-backend/pkg/logger"
	"github.com/servigo-app/servigo-backend/pkg/metrics"
	"github.com/servigo-app/servigo-backend/pkg/outbox"
)

const reminderDispatchBatchSize = 200

type reminderStore interface {
	FindDue(ctx context.Context, db *gorm.DB, asOf time.Time, limit int) ([]models.Reminder, error)
	MarkSentTx(ctx context.Context, tx *gorm.DB, reminderID uuid.UUID, sentAt time.Time) (bool, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ReminderDispatchJobParams configure the reminder dispatch sweep.
type ReminderDispatchJobParams struct {
	Logger    *logger.Logger
	DB        *gorm.DB
	Tx        txRunner
	Reminders reminderStore
	Outbox    eventEmitter
	Metrics   *metrics.CronJobMetrics
	BatchSize int
}

// NewReminderDispatchJob claims due reminders and emits a due event for each.
// Claim and event commit in one transaction, so a reminder fires at most once.
func NewReminderDispatchJob(params ReminderDispatchJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db handle required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Reminders == nil {
		return nil, fmt.Errorf("reminder store required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = reminderDispatchBatchSize
	}
	return &reminderDispatchJob{
		logg:      params.Logger,
		db:        params.DB,
		tx:        params.Tx,
		reminders: params.Reminders,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		batch:     batch,
		now:       time.Now,
	}, nil
}

type reminderDispatchJob struct {
	logg      *logger.Logger
	db        *gorm.DB
	tx        txRunner
	reminders reminderStore
	outbox    eventEmitter
	metrics   *metrics.CronJobMetrics
	batch     int
	now       func() time.Time
}

func (j *reminderDispatchJob) Name() string { return "reminder-dispatch" }

func (j *reminderDispatchJob) Run(ctx context.Context) error {
	asOf := j.now().UTC()
	due, err := j.reminders.FindDue(ctx, j.db, asOf, j.batch)
	if err != nil {
		return fmt.Errorf("find due reminders: %w", err)
	}

	var errs error
	dispatched := 0
	skipped := 0
	for _, reminder := range due {
		acted, err := j.dispatch(ctx, reminder, asOf)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("dispatch reminder %s: %w", reminder.ID, err))
			continue
		}
		if acted {
			dispatched++
		} else {
			skipped++
		}
	}

	if j.metrics != nil {
		j.metrics.AddRecords(j.Name(), "dispatched", dispatched)
		j.metrics.AddRecords(j.Name(), "skipped", skipped)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"due":        len(due),
		"dispatched": dispatched,
		"skipped":    skipped,
	})
	j.logg.Info(logCtx, "reminder dispatch sweep complete")
	return errs
}

func (j *reminderDispatchJob) dispatch(ctx context.Context, reminder models.Reminder, asOf time.Time) (bool, error) {
	var acted bool
	err := j.tx.WithTx(ctx, func(tx *gorm.DB) error {
		claimed, err := j.reminders.MarkSentTx(ctx, tx, reminder.ID, asOf)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}
		acted = true
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReminderDue,
			AggregateType: enums.AggregateReminder,
			AggregateID:   reminder.ID,
			OccurredAt:    asOf,
			Data: reminders.DueEvent{
				ReminderID:   reminder.ID,
				EngagementID: reminder.EngagementID,
				RecipientID:  reminder.RecipientID,
				Kind:         reminder.Kind,
			},
		})
	})
	return acted, err
}
