package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sigedoc/internal/document/models"
)

func vigenteDueIn(code string, today models.Date, days int) *models.Document {
	return &models.Document{
		Code:       code,
		Status:     models.StatusVigente,
		ReviewDate: today.AddDays(days),
	}
}

func TestExpiringWithinEmptyCollection(t *testing.T) {
	today := models.NewDate(2026, time.August, 30)

	got := ExpiringWithin(nil, today, ExpiryWindowDays)
	assert.Empty(t, got)
	assert.NotNil(t, got, "empty set, not an unset one")
}

func TestExpiringWithinBounds(t *testing.T) {
	today := models.NewDate(2026, time.August, 30)

	tests := []struct {
		name string
		days int
		want bool
	}{
		{"due today", 0, true},
		{"due in 10 days", 10, true},
		{"due at window edge", 30, true},
		{"due one day past window", 31, false},
		{"overdue yesterday", -1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := vigenteDueIn("PR-01", today, tt.days)
			got := ExpiringWithin([]*models.Document{doc}, today, ExpiryWindowDays)
			if tt.want {
				assert.Len(t, got, 1)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestExpiringWithinOnlyVigente(t *testing.T) {
	today := models.NewDate(2026, time.August, 30)

	for _, status := range []models.Status{models.StatusBorrador, models.StatusRevision, models.StatusAprobado, models.StatusObsoleto} {
		doc := vigenteDueIn("PR-02", today, 5)
		doc.Status = status
		assert.Empty(t, ExpiringWithin([]*models.Document{doc}, today, ExpiryWindowDays), "%s", status)
	}
}

func TestExpiringWithinIgnoresUnsetReviewDate(t *testing.T) {
	today := models.NewDate(2026, time.August, 30)
	doc := &models.Document{Code: "PR-03", Status: models.StatusVigente}

	assert.Empty(t, ExpiringWithin([]*models.Document{doc}, today, ExpiryWindowDays))
}

func TestExpiringWithinYearBoundary(t *testing.T) {
	today := models.NewDate(2026, time.December, 20)
	doc := vigenteDueIn("PR-04", today, 15) // lands on 2027-01-04

	assert.Len(t, ExpiringWithin([]*models.Document{doc}, today, ExpiryWindowDays), 1)
}
