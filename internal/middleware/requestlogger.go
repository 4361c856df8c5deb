package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stockroomhq/inventory-gateway/internal/models"
	"github.com/stockroomhq/inventory-gateway/internal/storage"
)

const logBatchSize = 100

// RequestLogWriter batches access-log rows into the ops database on a
// background goroutine so logging never blocks a request.
type RequestLogWriter struct {
	db   *storage.Postgres
	ch   chan models.RequestLog
	stop chan struct{}
	done chan struct{}
}

func NewRequestLogWriter(db *storage.Postgres, bufferSize int) *RequestLogWriter {
	w := &RequestLogWriter{
		db:   db,
		ch:   make(chan models.RequestLog, bufferSize),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go w.run()
	return w
}

func (w *RequestLogWriter) run() {
	defer close(w.done)

	batch := make([]models.RequestLog, 0, logBatchSize)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.db.DB.Create(&batch).Error; err != nil {
			log.Printf("Failed to insert request logs: %v", err)
		}
		batch = make([]models.RequestLog, 0, logBatchSize)
	}

	for {
		select {
		case entry := <-w.ch:
			batch = append(batch, entry)
			if len(batch) >= logBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.stop:
			// Drain whatever is queued, then flush once.
			for {
				select {
				case entry := <-w.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close flushes pending entries and stops the writer.
func (w *RequestLogWriter) Close() {
	close(w.stop)
	<-w.done
}

// Middleware records one row per request. The tenant fields are read
// after the chain runs, so identity set by Authenticate is captured.
func (w *RequestLogWriter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)

		entry := models.RequestLog{
			Timestamp:      start,
			Method:         c.Request.Method,
			Path:           c.Request.URL.Path,
			StatusCode:     c.Writer.Status(),
			ResponseTimeMs: int(duration.Milliseconds()),
			IPAddress:      c.ClientIP(),
			UserAgent:      c.Request.UserAgent(),
		}

		if tenant, ok := TenantFromContext(c); ok {
			entry.TenantID = tenant.TenantID
			entry.Plan = tenant.SubscriptionPlan
		}

		select {
		case w.ch <- entry:
		default:
			// Channel full; drop rather than block the request.
		}
	}
}
