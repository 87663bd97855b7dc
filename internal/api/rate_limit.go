package api

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// messageLimiter throttles chat sends per user over a sliding one-minute
// window, with an optional global ceiling. A max of 0 disables that limit.
type messageLimiter struct {
	mu         sync.Mutex
	perUserMax int
	globalMax  int
	window     time.Duration
	users      map[string][]int64
	global     []int64
}

func newMessageLimiterFromEnv() *messageLimiter {
	perUser := getenvIntRL("LUGGO_MESSAGE_RATE_LIMIT_PER_MIN", 60)
	global := getenvIntRL("LUGGO_MESSAGE_GLOBAL_RATE_LIMIT_PER_MIN", 5000)
	if perUser < 0 {
		perUser = 0
	}
	if global < 0 {
		global = 0
	}
	return &messageLimiter{
		perUserMax: perUser,
		globalMax:  global,
		window:     time.Minute,
		users:      map[string][]int64{},
		global:     make([]int64, 0, 1024),
	}
}

func (l *messageLimiter) allow(userID string, now time.Time) bool {
	if l == nil || (l.perUserMax == 0 && l.globalMax == 0) {
		return true
	}
	ts := now.UTC().Unix()
	cutoff := ts - int64(l.window.Seconds())
	l.mu.Lock()
	defer l.mu.Unlock()

	l.global = trimCutoff(l.global, cutoff)
	if l.globalMax > 0 && len(l.global) >= l.globalMax {
		return false
	}

	history := trimCutoff(l.users[userID], cutoff)
	if l.perUserMax > 0 && len(history) >= l.perUserMax {
		l.users[userID] = history
		return false
	}

	history = append(history, ts)
	l.users[userID] = history
	l.global = append(l.global, ts)
	return true
}

func trimCutoff(in []int64, cutoff int64) []int64 {
	if len(in) == 0 {
		return in
	}
	i := 0
	for i < len(in) && in[i] <= cutoff {
		i++
	}
	if i == 0 {
		return in
	}
	out := make([]int64, len(in)-i)
	copy(out, in[i:])
	return out
}

func getenvIntRL(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
