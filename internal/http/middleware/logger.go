package middleware

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger emits one JSON access-log line per request to stdout. The request id
// comes from the RequestID middleware; caller identity headers are included
// when present so log lines can be correlated with audit rows.
func Logger() fiber.Handler {
	return LoggerWithWriter(os.Stdout, time.UTC)
}

// LoggerWithWriter is Logger with an explicit sink and timestamp location.
func LoggerWithWriter(w io.Writer, loc *time.Location) fiber.Handler {
	enc := json.NewEncoder(w)

	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		rid, _ := c.Locals(RequestIDLocalKey).(string)
		entry := map[string]any{
			"ts":         time.Now().In(loc).Format(time.RFC3339Nano),
			"request_id": rid,
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"latency":    float64(time.Since(start).Milliseconds()),
		}
		if uid := c.Get("X-User-ID"); uid != "" {
			entry["user_id"] = uid
		}
		if tid := c.Get("X-Tenant-ID"); tid != "" {
			entry["tenant_id"] = tid
		}
		_ = enc.Encode(entry)

		return err
	}
}
