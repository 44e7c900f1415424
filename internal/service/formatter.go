package service

import (
	"time"

	"ridebook/internal/domain"
)

// Formatter renders status codes and dates for display.
type Formatter interface {
	StatusLabel(status domain.DisplayStatus) string
	GroupLabel(status domain.GroupStatus) string
	DateTime(t time.Time) string
}
