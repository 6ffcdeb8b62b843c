// Package events publishes domain events about expenses.
package events

import (
	"context"
	"encoding/json"
	"time"

	"pocketledger/internal/models"
)

// TypeExpenseCreated is the event type for new expenses.
const TypeExpenseCreated = "expense.created"

// ExpenseCreated is the message body of an expense.created event.
type ExpenseCreated struct {
	Type        string    `json:"type"`
	ExpenseID   string    `json:"expense_id"`
	UserID      string    `json:"user_id"`
	CategoryID  string    `json:"category_id"`
	TemplateID  string    `json:"template_id,omitempty"`
	PeriodKey   string    `json:"period_key,omitempty"`
	Title       string    `json:"title"`
	Amount      int64     `json:"amount"`
	Date        time.Time `json:"date"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// Sources of an expense.
const (
	SourceUser         = "user"
	SourceMaterializer = "materializer"
)

// NewExpenseCreated builds the event for e.
func NewExpenseCreated(e *models.Expense, source string) ExpenseCreated {
	msg := ExpenseCreated{
		Type:        TypeExpenseCreated,
		ExpenseID:   e.ID,
		UserID:      e.UserID,
		CategoryID:  e.CategoryID,
		Title:       e.Title,
		Amount:      e.Amount,
		Date:        e.Date,
		Source:      source,
		PublishedAt: time.Now().UTC(),
	}
	if e.TemplateID != nil {
		msg.TemplateID = *e.TemplateID
	}
	if e.PeriodKey != nil {
		msg.PeriodKey = *e.PeriodKey
	}
	return msg
}

// ToJSON encodes the event.
func (m ExpenseCreated) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Publisher sends expense events to a broker.
type Publisher interface {
	PublishExpenseCreated(ctx context.Context, msg ExpenseCreated) error
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) PublishExpenseCreated(context.Context, ExpenseCreated) error { return nil }
func (NopPublisher) Close() error                                              { return nil }
