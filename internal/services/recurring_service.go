package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "pocketledger/internal/errors"
	"pocketledger/internal/events"
	"pocketledger/internal/logger"
	"pocketledger/internal/models"
	"pocketledger/internal/recurring"
)

// gormRecurringStore implements recurring.Store on top of GORM.
type gormRecurringStore struct {
	db *gorm.DB
}

// NewRecurringStore returns a recurring.Store backed by db.
func NewRecurringStore(db *gorm.DB) recurring.Store {
	return &gormRecurringStore{db: db}
}

func (s *gormRecurringStore) ListTemplates(ctx context.Context, userID string) ([]models.Expense, error) {
	var templates []models.Expense
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_recurring = ?", userID, true).
		Order("created_at ASC").
		Find(&templates).Error
	return templates, err
}

// FindLastInstance prefers instances linked through template_id and falls back
// to unlinked expenses matching the template's title, amount, category and recurrence.
func (s *gormRecurringStore) FindLastInstance(ctx context.Context, tpl *models.Expense) (*models.Expense, error) {
	var recurringType models.RecurringType
	if tpl.RecurringType != nil {
		recurringType = *tpl.RecurringType
	}

	var last models.Expense
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_recurring = ?", tpl.UserID, false).
		Where("(template_id = ? OR (template_id IS NULL AND title = ? AND amount = ? AND category_id = ? AND recurring_type = ?))",
			tpl.ID, tpl.Title, tpl.Amount, tpl.CategoryID, recurringType).
		Order("date DESC").
		Order("created_at DESC").
		Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &last, nil
}

// InsertInstance maps a (template_id, period_key) collision to
// recurring.ErrAlreadyMaterialized. Soft-deleted instances still occupy their
// period key. For monthly and yearly templates that blocks regeneration for
// the rest of the period; daily and weekly keys are the instance's date, so a
// deleted instance only blocks that same day.
func (s *gormRecurringStore) InsertInstance(ctx context.Context, instance *models.Expense) error {
	err := s.db.WithContext(ctx).Create(instance).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return recurring.ErrAlreadyMaterialized
	}
	return err
}

func (s *gormRecurringStore) WithinTx(ctx context.Context, fn func(tx recurring.Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRecurringStore{db: tx})
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	return translateTxError(err)
}

// Postgres SQLSTATEs for a transaction rolled back in favour of a concurrent one.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// translateTxError marks Postgres serialization failures and deadlocks as
// recurring.ErrTxConflict. Two runs inserting the same period under
// serializable isolation fail this way rather than with a unique violation.
func translateTxError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected) {
		return fmt.Errorf("%w: %w", recurring.ErrTxConflict, err)
	}
	return err
}

// recurringService exposes the materializer to handlers and the pipeline.
type recurringService struct {
	db           *gorm.DB
	materializer *recurring.Materializer
	publisher    events.Publisher
	cache        CacheInvalidator
}

// NewRecurringService creates a new RecurringServicer. publisher and cache may be nil.
func NewRecurringService(db *gorm.DB, publisher events.Publisher, cache CacheInvalidator) RecurringServicer {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &recurringService{
		db:           db,
		materializer: recurring.New(NewRecurringStore(db), recurring.WithLogger(logger.Named("recurring"))),
		publisher:    publisher,
		cache:        cache,
	}
}

// ProcessRecurring materializes the user's due templates at referenceDate.
// When some instance writes fail, the partial result is returned together
// with a RECURRING_PARTIAL_FAILURE error.
func (s *recurringService) ProcessRecurring(ctx context.Context, userID string, referenceDate time.Time) (*recurring.Result, error) {
	res, err := s.materializer.Process(ctx, userID, referenceDate)
	if err != nil {
		switch {
		case errors.Is(err, recurring.ErrMissingUser):
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "user_id is required")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return res, apperrors.Wrap(apperrors.ErrInternalServer, err)
		default:
			return nil, apperrors.Storage(err)
		}
	}

	if res.Count > 0 {
		if s.cache != nil {
			s.cache.Invalidate(userID)
		}
		for i := range res.Created {
			msg := events.NewExpenseCreated(&res.Created[i], events.SourceMaterializer)
			if err := s.publisher.PublishExpenseCreated(ctx, msg); err != nil {
				logger.Get().Warnw("failed to publish expense event",
					"expense_id", res.Created[i].ID, "error", err)
			}
		}
	}

	if len(res.Failures) > 0 {
		return res, partialFailure(res)
	}
	return res, nil
}

func partialFailure(res *recurring.Result) *apperrors.AppError {
	msgs := make([]string, 0, len(res.Failures))
	errs := make([]error, 0, len(res.Failures))
	for _, f := range res.Failures {
		msgs = append(msgs, f.Error())
		errs = append(errs, f)
	}
	details := fmt.Sprintf("created %d, failed %d: %s", res.Count, len(res.Failures), strings.Join(msgs, "; "))
	return apperrors.WithDetails(apperrors.ErrRecurringPartialWrite, details, errors.Join(errs...))
}

// ListUsersWithTemplates returns the ids of users owning at least one template.
func (s *recurringService) ListUsersWithTemplates(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&models.Expense{}).
		Where("is_recurring = ?", true).
		Distinct().
		Order("user_id").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, apperrors.Storage(err)
	}
	return ids, nil
}
