package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-05")
	require.NoError(t, err)
	assert.Equal(t, 2024, d.Year())
	assert.Equal(t, time.January, d.Month())
	assert.Equal(t, 5, d.Day())
	assert.Equal(t, time.UTC, d.Location())

	_, err = ParseDate("01/05/2024")
	assert.Error(t, err)

	_, err = ParseDate("")
	assert.Error(t, err)
}

func TestDay_TruncatesToUTCMidnight(t *testing.T) {
	loc, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)

	stamp := time.Date(2024, 6, 15, 18, 30, 45, 123, loc)
	day := Day(stamp)

	assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), day)
	assert.True(t, Day(day).Equal(day), "Day must be idempotent")
}

func TestDetailCategory_Valid(t *testing.T) {
	for _, c := range []DetailCategory{
		CategoryGeneral, CategoryGroceries, CategoryIncome,
		CategoryTransport, CategoryTransportation,
	} {
		assert.True(t, c.Valid(), "category %q should be valid", c)
	}

	assert.False(t, DetailCategory("cryptozoology").Valid())
	assert.False(t, DetailCategory("").Valid())
	assert.False(t, DetailCategory("Groceries").Valid(), "categories are case sensitive")
}
