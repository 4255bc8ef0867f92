package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRangesOverlap(t *testing.T) {
	cases := []struct {
		name           string
		s1, e1, s2, e2 string
		want           bool
	}{
		{"contained", "2025-01-10", "2025-01-20", "2025-01-15", "2025-01-17", true},
		{"disjoint after", "2025-01-10", "2025-01-20", "2025-01-21", "2025-01-25", false},
		{"disjoint before", "2025-01-10", "2025-01-20", "2025-01-01", "2025-01-09", false},
		{"touching end inclusive", "2025-01-10", "2025-01-20", "2025-01-20", "2025-01-25", true},
		{"touching start inclusive", "2025-01-10", "2025-01-20", "2025-01-05", "2025-01-10", true},
		{"covering", "2025-01-10", "2025-01-20", "2025-01-01", "2025-01-31", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RangesOverlap(d(tc.s1), d(tc.e1), d(tc.s2), d(tc.e2)))
		})
	}
}

func TestLoanEndDate(t *testing.T) {
	assert.Equal(t, d("2025-01-17"), LoanEndDate(d("2025-01-10"), 7))
	// month boundary
	assert.Equal(t, d("2025-02-02"), LoanEndDate(d("2025-01-31"), 2))
	// time-of-day input is truncated first
	assert.Equal(t, d("2025-01-11"), LoanEndDate(d("2025-01-10").Add(15*time.Hour), 1))
}

func TestFormatLoanNumber(t *testing.T) {
	assert.Equal(t, "BA-2025-01-001", FormatLoanNumber(2025, time.January, 1))
	assert.Equal(t, "BA-2025-11-042", FormatLoanNumber(2025, time.November, 42))
	assert.Equal(t, "BA-2026-03-100", FormatLoanNumber(2026, time.March, 100))
}

func TestLoanItemRef(t *testing.T) {
	parent := "c3a5f6a0-0000-0000-0000-000000000001"
	child := "c3a5f6a0-0000-0000-0000-000000000002"

	var it LoanItem
	it.SetRef(ParentRef(parent))
	ref, err := it.Ref()
	require.NoError(t, err)
	assert.Equal(t, ParentRef(parent), ref)
	require.NotNil(t, it.DeviceID)
	assert.Nil(t, it.ChildDeviceID)

	it.SetRef(ChildRef(child))
	ref, err = it.Ref()
	require.NoError(t, err)
	assert.Equal(t, ChildRef(child), ref)
	assert.Nil(t, it.DeviceID)

	// both-null and both-set are rejected
	it.DeviceID, it.ChildDeviceID = nil, nil
	_, err = it.Ref()
	assert.ErrorIs(t, err, ErrAmbiguousDeviceRef)

	it.DeviceID, it.ChildDeviceID = &parent, &child
	_, err = it.Ref()
	assert.ErrorIs(t, err, ErrAmbiguousDeviceRef)
}

func TestDeriveParentStatus(t *testing.T) {
	assert.Equal(t, DeviceAvailable, DeriveParentStatus([]ChildDevice{
		{Status: DeviceBorrowed}, {Status: DeviceAvailable},
	}))
	assert.Equal(t, DeviceBorrowed, DeriveParentStatus([]ChildDevice{
		{Status: DeviceBorrowed}, {Status: DeviceMaintenance},
	}))
	assert.Equal(t, DeviceBorrowed, DeriveParentStatus(nil))
}
