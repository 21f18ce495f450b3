package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var almaty = time.FixedZone("ALMT", 5*3600)

func TestFormat(t *testing.T) {
	ts := time.Date(2025, 3, 10, 4, 5, 0, 0, time.UTC)

	assert.Equal(t, "10.03 09:05", FormatShort(ts, almaty))
	assert.Equal(t, "10 марта 2025", FormatRussian(ts, almaty))
	assert.Empty(t, MonthNameRu(0))
}

func TestDescribeCron(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"0 9 * * *", "каждый день в 09:00"},
		{"30 21 * * 1", "по понедельникам в 21:30"},
		{"0 9 * * 7", "по воскресеньям в 09:00"},
		{"*/15 * * * *", "*/15 * * * *"},
		{"0 9 1 * *", "0 9 1 * *"},
		{"0 25 * * *", "0 25 * * *"},
		{"nonsense", "nonsense"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, DescribeCron(tt.expr))
		})
	}
}
