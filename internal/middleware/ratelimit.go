package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter решает, можно ли обслужить очередной запрос клиента key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalLimiter ограничивает частоту запросов каждого клиента в памяти процесса.
type LocalLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	visitors map[string]*rate.Limiter
}

// NewLocalLimiter создаёт ограничитель на rps запросов в секунду с запасом burst для каждого клиента.
func NewLocalLimiter(rps, burst int) *LocalLimiter {
	if burst < 1 {
		burst = 1
	}
	return &LocalLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*rate.Limiter),
	}
}

// Allow расходует один токен клиента key.
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	lim, ok := l.visitors[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.visitors[key] = lim
	}
	l.mu.Unlock()

	return lim.Allow(), nil
}

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisLimiter ограничивает число запросов клиента в фиксированном окне, общем для всех экземпляров сервиса.
type RedisLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
}

// NewRedisLimiter создаёт ограничитель на limit запросов за window.
func NewRedisLimiter(rdb redis.Scripter, limit int, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		prefix: "yenabook:rl",
	}
}

// Allow увеличивает счётчик окна клиента key и сравнивает его с лимитом.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	res, err := fixedWindowScript.Run(ctx, l.rdb, []string{l.prefix + ":" + key}, l.window.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("run rate limit script: %w", err)
	}

	count, err := scriptCount(res)
	if err != nil {
		return false, err
	}
	return count <= int64(l.limit), nil
}

func scriptCount(res any) (int64, error) {
	switch v := res.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse rate limit counter: %w", err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected rate limit script result type %T", res)
	}
}

// RateLimit отклоняет запросы сверх лимита со статусом 429.
// Ошибка ограничителя пропускает запрос дальше, если failOpen, иначе отвечает 503.
func RateLimit(limiter Limiter, logger *zap.Logger, failOpen bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := limiter.Allow(r.Context(), clientKey(r))
			if err != nil {
				logger.Warn("rate limiter error", zap.Error(err))
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
			if !ok {
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		parts := strings.Split(ip, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
