package usage

import (
	"errors"
	"fmt"
	"time"
)

// ErrBudgetExceeded is matched by every BudgetExceededError.
var ErrBudgetExceeded = errors.New("monthly usage limit reached")

// BudgetExceededError carries the user-facing message explaining when
// metered calls become available again.
type BudgetExceededError struct {
	Message string
}

func (e *BudgetExceededError) Error() string {
	if e.Message == "" {
		return ErrBudgetExceeded.Error()
	}
	return e.Message
}

func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}

// IsBudgetExceeded reports whether err stems from an exhausted monthly budget.
func IsBudgetExceeded(err error) bool {
	return errors.Is(err, ErrBudgetExceeded)
}

// UserMessage returns the displayable notice carried by a budget error.
func UserMessage(err error) string {
	var budgetErr *BudgetExceededError
	if errors.As(err, &budgetErr) {
		return budgetErr.Error()
	}
	return err.Error()
}

// LimitMessage renders the notice shown once limit is spent during the month of now.
func LimitMessage(limit float64, now time.Time) string {
	next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
	return fmt.Sprintf("Monthly usage limit ($%.2f) reached. Service will resume on %s.",
		limit, next.Format("January 1, 2006"))
}
