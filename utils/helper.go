package utils

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/mmdatafocus/docflow_backend/config"
	"github.com/shopspring/decimal"
)

func GenerateUniqueFilename() string {
	return time.Now().UTC().Format("20060102T150405") + "_" + uuid.NewString()
}

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func UniqueSlice[T comparable](slice []T) []T {
	seen := make(map[T]struct{}, len(slice))
	result := make([]T, 0, len(slice))
	for _, v := range slice {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

func DereferencePtr[T any](ptr *T, defaults ...T) T {
	if ptr != nil {
		return *ptr
	}
	if len(defaults) > 0 {
		return defaults[0]
	}
	var zero T
	return zero
}

func NilIfEmpty[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

func ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(strings.ReplaceAll(value, ",", ""))
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q", value)
	}
	return d, nil
}

// ParseDateOnly parses an inclusive date boundary in YYYY-MM-DD form.
func ParseDateOnly(value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", value)
	}
	return t, nil
}

// EndOfDay returns the last instant of t's calendar day, so inclusive
// date-range filters capture everything created on the end date.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

var filenameUnsafe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeFilename collapses anything that could break a Content-Disposition
// header into underscores.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = filenameUnsafe.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "export"
	}
	return name
}

func SplitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SessionLock obtains a Redis lock scoped to one batch session so
// materialization runs cannot overlap. The caller must release the returned
// lock.
func SessionLock(ctx context.Context, sessionId string, ttl time.Duration, moduleName string, functionName string) (*redislock.Lock, error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		// Avoid nil-pointer panics when Redis lock isn't initialized yet.
		config.LogError(logger, moduleName, functionName, "Redis lock not initialized", sessionId, errors.New("redis lock is nil"))
		return nil, errors.New("service not ready (redis lock not initialized)")
	}
	lockKey := fmt.Sprintf("SessionLock:%s", sessionId)
	lock, err := locker.Obtain(ctx, lockKey, ttl, nil)
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for session", sessionId, err)
		return nil, errors.New("another operation is already running for this session")
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for session", sessionId, err)
		return nil, err
	}
	return lock, nil
}
