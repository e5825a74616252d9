package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

func IntToString(i int) string {
	return strconv.Itoa(i)
}

func StringToInt(s string) int {
	int, err := strconv.Atoi(s)
	if err != nil {
		panic(err)
	}

	return int
}

func IsLocalHost(host string) bool {
	return strings.HasPrefix(host, "127.0.0.1") || strings.HasPrefix(host, "localhost")
}

func TimeToUtcStringMs(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05.999")
}

func TimeToMs(t time.Time) int64 {
	return t.UnixMilli()
}

func MsToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Returns the later of two nullable timestamps
func MaxTime(a *time.Time, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil || a.After(*b) {
		return a
	}
	return b
}

// ParseTimestamp accepts the layouts seen across providers, plus epoch milliseconds
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999Z0700", "2006-01-02 15:04:05.999999", "2006-01-02"} {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return parsed.UTC(), nil
		}
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return MsToTime(ms), nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}
