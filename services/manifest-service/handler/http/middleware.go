package httpServer

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type ctxKeyLog struct{}
type ctxKeyRequestID struct{}

type logHandler struct {
	log  logrus.FieldLogger
	next http.Handler
}

type responseRecorder struct {
	b      int
	status int
	w      http.ResponseWriter
}

func (r *responseRecorder) Header() http.Header { return r.w.Header() }

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.w.Write(p)
	r.b += n
	return n, err
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.w.WriteHeader(statusCode)
}

func (lh *logHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx = context.WithValue(ctx, ctxKeyRequestID{}, requestID)
	w.Header().Set("X-Request-ID", requestID)

	start := time.Now()
	rr := &responseRecorder{w: w}
	log := lh.log.WithFields(logrus.Fields{
		"http.req.path":   r.URL.Path,
		"http.req.method": r.Method,
		"http.req.id":     requestID,
	})
	if station := r.Header.Get(headerStationID); station != "" {
		log = log.WithField("station_id", station)
	}
	log.Debug("request started")
	defer func() {
		log.WithFields(logrus.Fields{
			"http.resp.took_ms": int64(time.Since(start) / time.Millisecond),
			"http.resp.status":  rr.status,
			"http.resp.bytes":   rr.b}).Debugf("request complete")
	}()

	ctx = context.WithValue(ctx, ctxKeyLog{}, log)
	r = r.WithContext(ctx)
	lh.next.ServeHTTP(rr, r)
}

func requestLog(r *http.Request, fallback logrus.FieldLogger) logrus.FieldLogger {
	if l, ok := r.Context().Value(ctxKeyLog{}).(logrus.FieldLogger); ok {
		return l
	}
	return fallback
}

var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local capacity = tonumber(ARGV[1])
	local rate = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local requested = tonumber(ARGV[4])

	local info = redis.call("HMGET", key, "tokens", "last_refill")
	local tokens = tonumber(info[1])
	local last_refill = tonumber(info[2])

	if tokens == nil then
		tokens = capacity
		last_refill = now
	end

	local delta = math.max(0, now - last_refill)
	local filled_tokens = math.min(capacity, tokens + (delta / 1000 * rate))

	local allowed = 0
	if filled_tokens >= requested then
		filled_tokens = filled_tokens - requested
		allowed = 1
		redis.call("HMSET", key, "tokens", filled_tokens, "last_refill", now)
		redis.call("EXPIRE", key, math.ceil(capacity / rate) * 2)
	end

	return allowed
`)

// Limiter decides whether one more request under key fits the bucket.
type Limiter interface {
	Allow(ctx context.Context, key string, capacity, rate float64) (bool, error)
}

// RedisLimiter keeps one token bucket per key in Redis so every replica of
// the service shares the same budget for a station.
type RedisLimiter struct {
	client redis.Scripter
}

func NewRedisLimiter(client redis.Scripter) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, capacity, rate float64) (bool, error) {
	now := time.Now().UnixMilli()

	keys := []string{fmt.Sprintf("rate_limit:%s", key)}
	args := []interface{}{capacity, rate, now, 1}

	result, err := tokenBucketScript.Run(ctx, l.client, keys, args...).Int64()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// scanLimiter throttles scans per station. Redis errors let the scan through;
// the debounce and the item unique index still hold without it.
func (h *Handler) scanLimiter(next http.Handler) http.Handler {
	if h.limiter == nil || h.rate.Capacity <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 200*time.Millisecond)
		defer cancel()

		key := "scan:" + r.Header.Get(headerStationID)
		if r.Header.Get(headerStationID) == "" {
			key = "scan_ip:" + getRealIP(r)
		}

		allowed, err := h.limiter.Allow(ctx, key, h.rate.Capacity, h.rate.Refill)
		if err != nil {
			requestLog(r, h.log).Warnf("scan limiter redis error: %v", err)
		} else if !allowed {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many scans from this station", Code: "RATE_LIMITED"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getRealIP(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip = r.Header.Get("X-Real-IP")
	}
	if ip == "" {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	}
	return ip
}
