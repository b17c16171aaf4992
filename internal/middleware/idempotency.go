package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"bloodbank/pkg/apperror"
	"bloodbank/pkg/logger"
	pkgredis "bloodbank/pkg/redis"

	"github.com/gin-gonic/gin"
)

const IdempotencyHeader = "Idempotency-Key"

type idempotencyRecord struct {
	Status      int    `json:"status"`
	Body        string `json:"body"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
	Pending     bool   `json:"pending,omitempty"`
}

// Idempotency replays the stored response when a create call is retried with
// the same Idempotency-Key and body. The header is optional and a nil store
// disables the middleware.
func Idempotency(store pkgredis.IdempotencyStore, ttl time.Duration, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		if store == nil || key == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			abortWithError(c, apperror.Wrap(apperror.CodeValidation, err, "could not read request body"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		requestHash := hashBody(body)
		storeKey := store.IdempotencyKey(buildScope(c), key)

		// The key is reserved before the handler runs; a concurrent retry
		// finds the pending record.
		reservation, _ := json.Marshal(idempotencyRecord{Pending: true, RequestHash: requestHash})
		reserved, err := store.SetNX(ctx, storeKey, string(reservation), ttl)
		if err != nil {
			abortWithError(c, apperror.Internal(err, "reserve idempotency key"))
			return
		}
		if !reserved {
			replayOrReject(c, store, storeKey, requestHash)
			return
		}

		capture := &bodyCapture{ResponseWriter: c.Writer}
		c.Writer = capture
		c.Next()

		status := c.Writer.Status()
		if status >= http.StatusInternalServerError {
			// Release the key so the client can retry.
			if err := store.Del(ctx, storeKey); err != nil {
				logError(c, log, "release idempotency key", err)
			}
			return
		}
		payload, err := json.Marshal(idempotencyRecord{
			Status:      status,
			Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
			ContentType: c.Writer.Header().Get("Content-Type"),
			RequestHash: requestHash,
		})
		if err != nil {
			logError(c, log, "marshal idempotency record", err)
			return
		}
		if err := store.Set(ctx, storeKey, string(payload), ttl); err != nil {
			logError(c, log, "persist idempotency record", err)
		}
	}
}

// replayOrReject answers a request whose key is already taken: a finished
// record with the same body is replayed, anything else is a conflict.
func replayOrReject(c *gin.Context, store pkgredis.IdempotencyStore, storeKey, requestHash string) {
	stored, err := store.Get(c.Request.Context(), storeKey)
	if errors.Is(err, pkgredis.ErrNil) {
		abortWithError(c, apperror.Conflict("request with this idempotency key is still in progress"))
		return
	}
	if err != nil {
		abortWithError(c, apperror.Internal(err, "check idempotency"))
		return
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		abortWithError(c, apperror.Internal(err, "decode idempotency record"))
		return
	}
	if record.RequestHash != requestHash {
		abortWithError(c, apperror.Conflict("idempotency key reused with different request body"))
		return
	}
	if record.Pending {
		abortWithError(c, apperror.Conflict("request with this idempotency key is still in progress"))
		return
	}
	writeStoredResponse(c, record)
}

func buildScope(c *gin.Context) string {
	return strings.Join([]string{c.GetString(ctxUserID), c.Request.Method, c.Request.URL.Path}, "|")
}

func writeStoredResponse(c *gin.Context, record idempotencyRecord) {
	decoded, err := base64.StdEncoding.DecodeString(record.Body)
	if err != nil {
		abortWithError(c, apperror.Internal(err, "decode idempotency body"))
		return
	}
	contentType := record.ContentType
	if contentType == "" {
		contentType = "application/json; charset=utf-8"
	}
	c.Header("Idempotent-Replayed", "true")
	c.Data(record.Status, contentType, decoded)
	c.Abort()
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func logError(c *gin.Context, log *logger.Logger, msg string, err error) {
	if log == nil || err == nil {
		return
	}
	log.Error(c.Request.Context(), msg, err)
}

type bodyCapture struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyCapture) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
