package timeutil_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nilsrao/fatvol/timeutil"
)

func TestEncodeDate(t *testing.T) {
	d := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	got := timeutil.EncodeDate(d)

	year := (got >> 9) & 0x7F
	month := (got >> 5) & 0x0F
	day := got & 0x1F

	assert.EqualValues(t, 2024-1980, year)
	assert.EqualValues(t, 3, month)
	assert.EqualValues(t, 15, day)
}

func TestEncodeDateClampsOutOfRangeYears(t *testing.T) {
	tooOld := time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
	tooNew := time.Date(2200, time.January, 1, 0, 0, 0, 0, time.UTC)

	assert.EqualValues(t, 0, (timeutil.EncodeDate(tooOld)>>9)&0x7F)
	assert.EqualValues(t, 0x7F, (timeutil.EncodeDate(tooNew)>>9)&0x7F)
}

func TestEncodeTime(t *testing.T) {
	tm := time.Date(2024, time.March, 15, 13, 45, 30, 0, time.UTC)
	got := timeutil.EncodeTime(tm)

	hour := (got >> 11) & 0x1F
	minute := (got >> 5) & 0x3F
	twoSecond := got & 0x1F

	assert.EqualValues(t, 13, hour)
	assert.EqualValues(t, 45, minute)
	assert.EqualValues(t, 15, twoSecond)
}

func TestNowDateAndNowTimeDoNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		timeutil.NowDate()
		timeutil.NowTime()
	})
}
