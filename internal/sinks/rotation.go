package sinks

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RotationKind selects the file sink's rollover policy.
type RotationKind int

const (
	RotateNever RotationKind = iota
	RotateSize
	RotateDaily
	RotateHourly
)

// Rotation is a parsed rotation policy.
type Rotation struct {
	Kind  RotationKind
	Bytes int64 // size threshold, RotateSize only
}

func (r Rotation) String() string {
	switch r.Kind {
	case RotateSize:
		return fmt.Sprintf("size(%d)", r.Bytes)
	case RotateDaily:
		return "daily"
	case RotateHourly:
		return "hourly"
	default:
		return "never"
	}
}

// RetentionKind selects the cleanup policy for rotated files.
type RetentionKind int

const (
	RetainAll RetentionKind = iota
	RetainCount
	RetainAge
)

// Retention is a parsed retention policy.
type Retention struct {
	Kind  RetentionKind
	Count int
	Age   time.Duration
}

var sizeUnits = map[string]int64{
	"B":  1,
	"KB": 1024,
	"MB": 1024 * 1024,
	"GB": 1024 * 1024 * 1024,
}

// ParseRotation understands "<N> <unit>" with unit in B/KB/MB/GB for
// size policies, and "daily"/"hourly" for time policies. An empty spec
// means no rotation.
func ParseRotation(spec string) (Rotation, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return Rotation{Kind: RotateNever}, nil
	}
	switch strings.ToLower(s) {
	case "daily":
		return Rotation{Kind: RotateDaily}, nil
	case "hourly":
		return Rotation{Kind: RotateHourly}, nil
	}
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Rotation{}, fmt.Errorf("invalid rotation spec %q", spec)
	}
	n, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || n <= 0 {
		return Rotation{}, fmt.Errorf("invalid rotation size in %q", spec)
	}
	unit, ok := sizeUnits[strings.ToUpper(fields[1])]
	if !ok {
		return Rotation{}, fmt.Errorf("invalid rotation unit %q (want B, KB, MB or GB)", fields[1])
	}
	return Rotation{Kind: RotateSize, Bytes: n * unit}, nil
}

// ParseRetention understands "<N> days" for age policies and a bare
// integer for count policies. An empty spec keeps everything.
func ParseRetention(spec string) (Retention, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return Retention{Kind: RetainAll}, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return Retention{}, fmt.Errorf("invalid retention count %q", spec)
		}
		return Retention{Kind: RetainCount, Count: n}, nil
	}
	fields := strings.Fields(s)
	if len(fields) == 2 {
		unit := strings.ToLower(fields[1])
		if unit == "days" || unit == "day" {
			n, err := strconv.Atoi(fields[0])
			if err == nil && n > 0 {
				return Retention{Kind: RetainAge, Age: time.Duration(n) * 24 * time.Hour}, nil
			}
		}
	}
	return Retention{}, fmt.Errorf("invalid retention spec %q", spec)
}

// periodTag formats the departing period for time-based rotation tags,
// in local time.
func periodTag(kind RotationKind, t time.Time) string {
	if kind == RotateHourly {
		return t.Format("2006-01-02_15")
	}
	return t.Format("2006-01-02")
}

// periodKey identifies the wall-clock period a timestamp belongs to;
// rotation triggers when a write's key differs from the current one.
func periodKey(kind RotationKind, t time.Time) string {
	return periodTag(kind, t)
}
