package recurring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pocketledger/internal/models"

	"go.uber.org/zap"
)

// txAttempts bounds how often one template's transaction is run when it keeps
// conflicting with concurrent runs.
const txAttempts = 3

// ErrMissingUser is returned when Process is called without a user id.
var ErrMissingUser = errors.New("recurring: user id is required")

// Failure records a template whose instance could not be written.
type Failure struct {
	TemplateID string
	Title      string
	Err        error
}

func (f Failure) Error() string {
	return fmt.Sprintf("template %s (%s): %v", f.TemplateID, f.Title, f.Err)
}

// Result summarizes one Process call.
type Result struct {
	Created  []models.Expense
	Count    int
	Checked  int
	Failures []Failure
}

// Materializer creates at most one instance per due template per call.
type Materializer struct {
	store Store
	now   func() time.Time
	log   *zap.SugaredLogger
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithClock overrides the clock used when Process gets a zero reference date.
func WithClock(now func() time.Time) Option {
	return func(m *Materializer) { m.now = now }
}

// WithLogger sets the logger. A no-op logger is used otherwise.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(m *Materializer) { m.log = log }
}

// New returns a Materializer over store.
func New(store Store, opts ...Option) *Materializer {
	m := &Materializer{
		store: store,
		now:   time.Now,
		log:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Process materializes the due templates of userID at ref (now when zero).
// A template listing failure aborts the call. Instance write failures are
// collected in Result.Failures and do not undo instances already created.
func (m *Materializer) Process(ctx context.Context, userID string, ref time.Time) (*Result, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if ref.IsZero() {
		ref = m.now()
	}

	templates, err := m.store.ListTemplates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	res := &Result{Created: []models.Expense{}}
	for i := range templates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		tpl := &templates[i]
		res.Checked++

		created, err := m.processTemplate(ctx, tpl, ref)
		if err != nil {
			m.log.Warnw("recurring instance not created",
				"user_id", userID, "template_id", tpl.ID, "error", err)
			res.Failures = append(res.Failures, Failure{TemplateID: tpl.ID, Title: tpl.Title, Err: err})
			continue
		}
		if created != nil {
			res.Created = append(res.Created, *created)
		}
	}
	res.Count = len(res.Created)

	m.log.Infow("recurring templates processed",
		"user_id", userID,
		"reference_date", ref.Format(time.RFC3339),
		"checked", res.Checked,
		"created", res.Count,
		"failures", len(res.Failures),
	)
	return res, nil
}

func (m *Materializer) processTemplate(ctx context.Context, tpl *models.Expense, ref time.Time) (*models.Expense, error) {
	if tpl.RecurringType == nil {
		return nil, nil
	}
	policy, ok := PolicyFor(*tpl.RecurringType)
	if !ok {
		return nil, nil
	}

	var created *models.Expense
	run := func(tx Store) error {
		created = nil
		last, err := tx.FindLastInstance(ctx, tpl)
		if err != nil {
			return fmt.Errorf("find last instance: %w", err)
		}
		anchor := tpl.CreatedAt
		if last != nil {
			anchor = last.Date
		}
		if !policy.Eligible(anchor, ref) {
			return nil
		}

		instance := NewInstance(tpl, ref, policy.PeriodKey(ref))
		if err := tx.InsertInstance(ctx, instance); err != nil {
			return err
		}
		created = instance
		return nil
	}

	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		err = m.store.WithinTx(ctx, run)
		if !errors.Is(err, ErrTxConflict) {
			break
		}
		m.log.Debugw("template transaction conflicted, retrying", "template_id", tpl.ID, "attempt", attempt)
	}
	if errors.Is(err, ErrAlreadyMaterialized) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

// NewInstance builds the instance of tpl for the period containing ref.
func NewInstance(tpl *models.Expense, ref time.Time, periodKey string) *models.Expense {
	templateID := tpl.ID
	recurringType := *tpl.RecurringType
	return &models.Expense{
		UserID:        tpl.UserID,
		CategoryID:    tpl.CategoryID,
		SubcategoryID: tpl.SubcategoryID,
		Title:         tpl.Title,
		Amount:        tpl.Amount,
		PaymentMode:   tpl.PaymentMode,
		Date:          ref,
		IsRecurring:   false,
		RecurringType: &recurringType,
		TemplateID:    &templateID,
		PeriodKey:     &periodKey,
	}
}
