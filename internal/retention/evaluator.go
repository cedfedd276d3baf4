package retention

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultReviewWindow                = 180 * 24 * time.Hour
	DefaultPermanentTransferAfterYears = 30
)

type Config struct {
	// ReviewWindow is how long before the end date a document enters review.
	ReviewWindow time.Duration
	// PermanentTransferAfterYears is the age at which a permanent document
	// is handed over to the national archive. Zero disables transfer.
	PermanentTransferAfterYears int
}

func DefaultConfig() Config {
	return Config{
		ReviewWindow:                DefaultReviewWindow,
		PermanentTransferAfterYears: DefaultPermanentTransferAfterYears,
	}
}

type Verdict int

const (
	VerdictNone Verdict = iota
	VerdictTransfer
	VerdictDestroy
	VerdictReview
)

func (v Verdict) String() string {
	switch v {
	case VerdictTransfer:
		return "transfer"
	case VerdictDestroy:
		return "destroy"
	case VerdictReview:
		return "review"
	default:
		return "none"
	}
}

// Result holds three disjoint document lists
type Result struct {
	ToTransfer    []Document `json:"to_transfer"`
	ToDestroy     []Document `json:"to_destroy"`
	PendingReview []Document `json:"pending_review"`
	Skipped       int        `json:"skipped"`
}

// Evaluator classifies documents. The zero value is not usable; use
// NewEvaluator.
type Evaluator struct {
	cfg    Config
	logger *zerolog.Logger
}

func NewEvaluator(cfg Config, logger *zerolog.Logger) *Evaluator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Evaluator{cfg: cfg, logger: logger}
}

// Classify returns the single action that applies to doc at now.
// Permanent documents never classify as destroy.
func (e *Evaluator) Classify(doc Document, now time.Time) Verdict {
	if doc.CreationDate == nil {
		return VerdictNone
	}
	cat, err := Normalize(doc.RetentionCategory)
	if err != nil {
		return VerdictNone
	}

	if cat.Permanent() {
		if e.cfg.PermanentTransferAfterYears <= 0 {
			return VerdictNone
		}
		trigger := doc.CreationDate.AddDate(e.cfg.PermanentTransferAfterYears, 0, 0)
		if !now.Before(trigger) {
			return VerdictTransfer
		}
		return VerdictNone
	}

	end, _ := doc.EndDate()
	if !now.Before(end) {
		return VerdictDestroy
	}
	if left := end.Sub(now); left > 0 && left <= e.cfg.ReviewWindow && doc.Status == StatusActiveStorage {
		return VerdictReview
	}
	return VerdictNone
}

// Evaluate partitions docs into transfer, destroy, and review lists
func (e *Evaluator) Evaluate(docs []Document, now time.Time) Result {
	res := Result{
		ToTransfer:    []Document{},
		ToDestroy:     []Document{},
		PendingReview: []Document{},
	}

	for _, doc := range docs {
		if doc.CreationDate == nil {
			res.Skipped++
			continue
		}
		if _, err := Normalize(doc.RetentionCategory); err != nil {
			e.logger.Warn().
				Str("component", "retention").
				Str("document_id", doc.ID).
				Str("category", string(doc.RetentionCategory)).
				Msg("Skipping document with unknown retention category")
			res.Skipped++
			continue
		}

		switch e.Classify(doc, now) {
		case VerdictTransfer:
			res.ToTransfer = append(res.ToTransfer, doc)
		case VerdictDestroy:
			res.ToDestroy = append(res.ToDestroy, doc)
		case VerdictReview:
			res.PendingReview = append(res.PendingReview, doc)
		}
	}
	return res
}

// DaysUntil returns whole days from now until t, negative when t is past
func DaysUntil(t, now time.Time) int {
	return int(t.Sub(now).Hours() / 24)
}

// IDs extracts document ids
func IDs(docs []Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}
