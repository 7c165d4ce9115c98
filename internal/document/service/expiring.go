package service

import (
	"sigedoc/internal/document/models"
)

// ExpiryWindowDays is the look-ahead for the expiring-soon derived set.
const ExpiryWindowDays = 30

// ExpiringWithin selects the published documents whose review date falls in
// [today, today+days], both bounds inclusive. Pure: no clock access, no
// mutation of the input. Review dates are compared as calendar days, so a
// document reviewed "today" matches regardless of wall-clock time. An empty
// collection yields an empty set; that is a valid result, not an unset one.
func ExpiringWithin(docs []*models.Document, today models.Date, days int) []*models.Document {
	upper := today.AddDays(days)
	out := make([]*models.Document, 0)
	for _, doc := range docs {
		if doc.Status != models.StatusVigente {
			continue
		}
		if doc.ReviewDate.IsZero() {
			continue
		}
		if doc.ReviewDate.Before(today) || doc.ReviewDate.After(upper) {
			continue
		}
		out = append(out, doc)
	}
	return out
}
