package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ridebook/internal/domain"
)

func TestArabic_StatusLabel(t *testing.T) {
	f := NewArabic(nil)

	assert.Equal(t, "ملغاة (النظام)", f.StatusLabel(domain.DisplaySystemCancelled))
	assert.Equal(t, "ملغاة (بواسطتك)", f.StatusLabel(domain.DisplayUserCancelled))
	assert.Equal(t, "قادمة", f.StatusLabel(domain.DisplayUpcoming))
	assert.Equal(t, "مؤرشفة (غير معروفة)", f.StatusLabel(domain.DisplayStatus("bogus")))
}

func TestArabic_GroupLabel(t *testing.T) {
	f := NewArabic(nil)

	assert.Equal(t, "حالات مختلفة", f.GroupLabel(domain.GroupMixedStatus))
	assert.Equal(t, "مكتملة", f.GroupLabel(domain.GroupStatus(domain.DisplayCompleted)))
}

func TestArabic_DateTime(t *testing.T) {
	cairo := time.FixedZone("EET", 2*60*60)
	f := NewArabic(cairo)

	// 2026-03-01 is a Sunday.
	at := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	assert.Equal(t, "الأحد 1 مارس 2026، 12:05 م", f.DateTime(at))

	morning := time.Date(2026, 3, 2, 6, 30, 0, 0, time.UTC)
	assert.Equal(t, "الاثنين 2 مارس 2026، 8:30 ص", f.DateTime(morning))

	assert.Equal(t, "", f.DateTime(time.Time{}))
}
