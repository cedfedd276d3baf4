// Package retention classifies archived documents against the retention
// category table.
package retention

import (
	"fmt"
	"time"
)

type Category string

const (
	Category3Y        Category = "3y"
	Category5Y        Category = "5y"
	Category10Y       Category = "10y"
	Category30Y       Category = "30y"
	CategoryPermanent Category = "permanent"

	// DefaultCategory applies to documents registered without a category.
	DefaultCategory = Category10Y
)

var categoryYears = map[Category]int{
	Category3Y:  3,
	Category5Y:  5,
	Category10Y: 10,
	Category30Y: 30,
}

// Categories returns all known categories, shortest retention first
func Categories() []Category {
	return []Category{Category3Y, Category5Y, Category10Y, Category30Y, CategoryPermanent}
}

// Years returns the retention duration in years. Permanent has none.
func (c Category) Years() (int, bool) {
	y, ok := categoryYears[c]
	return y, ok
}

func (c Category) Permanent() bool {
	return c == CategoryPermanent
}

func (c Category) Valid() bool {
	_, finite := categoryYears[c]
	return finite || c.Permanent()
}

// Normalize maps an empty category to DefaultCategory and rejects unknowns
func Normalize(c Category) (Category, error) {
	if c == "" {
		return DefaultCategory, nil
	}
	if !c.Valid() {
		return "", fmt.Errorf("unknown retention category %q", c)
	}
	return c, nil
}

type DocumentStatus string

const (
	StatusRegistered       DocumentStatus = "REGISTERED"
	StatusActiveStorage    DocumentStatus = "ACTIVE_STORAGE"
	StatusReview           DocumentStatus = "REVIEW"
	StatusAwaitingTransfer DocumentStatus = "AWAITING_TRANSFER"
	StatusTransferred      DocumentStatus = "TRANSFERRED"
	StatusDestroy          DocumentStatus = "DESTROY"
)

// CandidateStatuses are the document statuses the lifecycle evaluates
func CandidateStatuses() []DocumentStatus {
	return []DocumentStatus{StatusActiveStorage, StatusReview}
}

// Document is the lifecycle view of an archived document
type Document struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	Status            DocumentStatus `json:"status"`
	RetentionCategory Category       `json:"retention_category"`
	CreationDate      *time.Time     `json:"creation_date,omitempty"`
}

// EndDate returns creation_date plus the category duration. It reports
// false for permanent documents, unknown categories, and documents
// without a creation date.
func (d Document) EndDate() (time.Time, bool) {
	if d.CreationDate == nil {
		return time.Time{}, false
	}
	cat, err := Normalize(d.RetentionCategory)
	if err != nil {
		return time.Time{}, false
	}
	years, finite := cat.Years()
	if !finite {
		return time.Time{}, false
	}
	return d.CreationDate.AddDate(years, 0, 0), true
}
