package sinks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRotation(t *testing.T) {
	cases := []struct {
		spec string
		want Rotation
	}{
		{"", Rotation{Kind: RotateNever}},
		{"100 B", Rotation{Kind: RotateSize, Bytes: 100}},
		{"5 KB", Rotation{Kind: RotateSize, Bytes: 5 * 1024}},
		{"100 MB", Rotation{Kind: RotateSize, Bytes: 100 * 1024 * 1024}},
		{"1 GB", Rotation{Kind: RotateSize, Bytes: 1024 * 1024 * 1024}},
		{"daily", Rotation{Kind: RotateDaily}},
		{"Hourly", Rotation{Kind: RotateHourly}},
		{"  10 mb  ", Rotation{Kind: RotateSize, Bytes: 10 * 1024 * 1024}},
	}
	for _, c := range cases {
		got, err := ParseRotation(c.spec)
		require.NoError(t, err, "spec %q", c.spec)
		assert.Equal(t, c.want, got, "spec %q", c.spec)
	}
}

func TestParseRotationRejectsBadSpecs(t *testing.T) {
	for _, spec := range []string{"weekly", "100", "MB 100", "-5 MB", "0 MB", "ten MB", "1 TB"} {
		_, err := ParseRotation(spec)
		assert.Error(t, err, "spec %q must be rejected", spec)
	}
}

func TestParseRetention(t *testing.T) {
	cases := []struct {
		spec string
		want Retention
	}{
		{"", Retention{Kind: RetainAll}},
		{"3", Retention{Kind: RetainCount, Count: 3}},
		{"0", Retention{Kind: RetainCount, Count: 0}},
		{"7 days", Retention{Kind: RetainAge, Age: 7 * 24 * time.Hour}},
		{"1 day", Retention{Kind: RetainAge, Age: 24 * time.Hour}},
	}
	for _, c := range cases {
		got, err := ParseRetention(c.spec)
		require.NoError(t, err, "spec %q", c.spec)
		assert.Equal(t, c.want, got, "spec %q", c.spec)
	}
}

func TestParseRetentionRejectsBadSpecs(t *testing.T) {
	for _, spec := range []string{"-1", "soon", "7 weeks", "0 days", "days 7"} {
		_, err := ParseRetention(spec)
		assert.Error(t, err, "spec %q must be rejected", spec)
	}
}

func TestPeriodTags(t *testing.T) {
	ts := time.Date(2025, 1, 1, 23, 59, 59, 0, time.Local)
	assert.Equal(t, "2025-01-01", periodTag(RotateDaily, ts))
	assert.Equal(t, "2025-01-01_23", periodTag(RotateHourly, ts))
}
