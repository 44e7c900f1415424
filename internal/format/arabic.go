package format

import (
	"fmt"
	"time"

	"ridebook/internal/domain"
)

var statusLabels = map[domain.DisplayStatus]string{
	domain.DisplayUpcoming:        "قادمة",
	domain.DisplayOngoing:         "جارية",
	domain.DisplayCompleted:       "مكتملة",
	domain.DisplayCancelled:       "ملغاة",
	domain.DisplayUserCancelled:   "ملغاة (بواسطتك)",
	domain.DisplaySystemCancelled: "ملغاة (النظام)",
	domain.DisplayArchivedUnknown: "مؤرشفة (غير معروفة)",
}

var groupLabels = map[domain.GroupStatus]string{
	domain.GroupCancelledByYou:    "ملغاة بواسطتك",
	domain.GroupCancelledBySystem: "ملغاة من النظام",
	domain.GroupMixedStatus:       "حالات مختلفة",
}

var weekdays = [...]string{"الأحد", "الاثنين", "الثلاثاء", "الأربعاء", "الخميس", "الجمعة", "السبت"}

var months = [...]string{
	"يناير", "فبراير", "مارس", "أبريل", "مايو", "يونيو",
	"يوليو", "أغسطس", "سبتمبر", "أكتوبر", "نوفمبر", "ديسمبر",
}

// Arabic renders labels and dates in Arabic for one display time zone.
type Arabic struct {
	loc *time.Location
}

// NewArabic creates a formatter rendering times in loc. A nil loc means UTC.
func NewArabic(loc *time.Location) *Arabic {
	if loc == nil {
		loc = time.UTC
	}
	return &Arabic{loc: loc}
}

// StatusLabel returns the label of a booking status.
func (a *Arabic) StatusLabel(status domain.DisplayStatus) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return statusLabels[domain.DisplayArchivedUnknown]
}

// GroupLabel returns the label of a group header status.
func (a *Arabic) GroupLabel(status domain.GroupStatus) string {
	if label, ok := groupLabels[status]; ok {
		return label
	}
	return a.StatusLabel(domain.DisplayStatus(status))
}

// DateTime renders t as e.g. "الأحد 1 مارس 2026، 12:00 م".
func (a *Arabic) DateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	local := t.In(a.loc)

	hour := local.Hour() % 12
	if hour == 0 {
		hour = 12
	}
	period := "ص"
	if local.Hour() >= 12 {
		period = "م"
	}

	return fmt.Sprintf("%s %d %s %d، %d:%02d %s",
		weekdays[local.Weekday()],
		local.Day(),
		months[local.Month()-1],
		local.Year(),
		hour,
		local.Minute(),
		period,
	)
}
