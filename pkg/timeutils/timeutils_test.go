package timeutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDailyOccurrence(t *testing.T) {
	loc := time.UTC

	from := time.Date(2025, 3, 10, 6, 0, 0, 0, loc)
	next := NextDailyOccurrence(7, 30, loc, from)
	assert.Equal(t, time.Date(2025, 3, 10, 7, 30, 0, 0, loc), next)

	from = time.Date(2025, 3, 10, 7, 30, 0, 0, loc)
	next = NextDailyOccurrence(7, 30, loc, from)
	assert.Equal(t, time.Date(2025, 3, 11, 7, 30, 0, 0, loc), next, "exact hit rolls to tomorrow")

	from = time.Date(2025, 3, 10, 22, 0, 0, 0, loc)
	next = NextDailyOccurrence(21, 0, loc, from)
	assert.Equal(t, time.Date(2025, 3, 11, 21, 0, 0, 0, loc), next)
}
