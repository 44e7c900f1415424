package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyHeader = "Idempotency-Key"

	// DefaultIdempotencyTTL is how long a response stays replayable.
	DefaultIdempotencyTTL = 24 * time.Hour
)

// replay is a stored response.
type replay struct {
	StatusCode  int             `json:"status_code"`
	ContentType string          `json:"content_type"`
	Body        json.RawMessage `json:"body"`
}

// captureWriter copies the response body while it is written.
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response of a POST carrying an
// Idempotency-Key the same user already sent. It must run after
// AuthMiddleware. Redis failures disable replay for the request.
func IdempotencyMiddleware(client *redis.Client, ttl time.Duration) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}

	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyHeader)
		if c.Request.Method != http.MethodPost || key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		storeKey := idempotencyKey(UserIDFromContext(c), key)

		data, err := client.Get(ctx, storeKey).Bytes()
		if err == nil {
			var stored replay
			if json.Unmarshal(data, &stored) == nil {
				c.Header("Idempotent-Replay", "true")
				c.Data(stored.StatusCode, stored.ContentType, stored.Body)
				c.Abort()
				return
			}
		} else if !errors.Is(err, redis.Nil) {
			c.Next()
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		// 5xx may be retried; 409 means the request was turned away.
		status := w.Status()
		if status >= http.StatusInternalServerError || status == http.StatusConflict {
			return
		}

		encoded, err := json.Marshal(replay{
			StatusCode:  status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		})
		if err != nil {
			return
		}
		_ = client.Set(ctx, storeKey, encoded, ttl).Err()
	}
}

func idempotencyKey(userID, key string) string {
	return "idempotency:" + userID + ":" + key
}
