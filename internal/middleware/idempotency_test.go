package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	pkgredis "bloodbank/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", pkgredis.ErrNil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	str, _ := value.(string)
	f.data[key] = str
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func newIdempotentRouter(store pkgredis.IdempotencyStore, calls *int32, status int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/blood/donations/create/", Idempotency(store, time.Hour, nil), func(c *gin.Context) {
		n := atomic.AddInt32(calls, 1)
		c.JSON(status, gin.H{"call": n})
	})
	return r
}

func post(r *gin.Engine, key, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/blood/donations/create/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	var calls int32
	router := newIdempotentRouter(newFakeStore(), &calls, http.StatusCreated)

	first := post(router, "abc", `{"quantity":1}`)
	require.Equal(t, http.StatusCreated, first.Code)

	second := post(router, "abc", `{"quantity":1}`)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	var calls int32
	router := newIdempotentRouter(newFakeStore(), &calls, http.StatusCreated)

	require.Equal(t, http.StatusCreated, post(router, "abc", `{"quantity":1}`).Code)
	w := post(router, "abc", `{"quantity":2}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestIdempotencyPassThrough(t *testing.T) {
	var calls int32

	// No key: every call runs.
	router := newIdempotentRouter(newFakeStore(), &calls, http.StatusCreated)
	post(router, "", `{}`)
	post(router, "", `{}`)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))

	// No store configured.
	atomic.StoreInt32(&calls, 0)
	router = newIdempotentRouter(nil, &calls, http.StatusCreated)
	post(router, "abc", `{}`)
	post(router, "abc", `{}`)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestIdempotencySkipsServerErrors(t *testing.T) {
	var calls int32
	store := newFakeStore()
	router := newIdempotentRouter(store, &calls, http.StatusInternalServerError)

	post(router, "abc", `{}`)
	post(router, "abc", `{}`)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	assert.Empty(t, store.data)
}

func TestIdempotencyRejectsRetryWhileInFlight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var calls int32
	var nested *httptest.ResponseRecorder

	r := gin.New()
	r.POST("/blood/donations/create/", Idempotency(newFakeStore(), time.Hour, nil), func(c *gin.Context) {
		atomic.AddInt32(&calls, 1)
		// The retry arrives before this request has finished.
		nested = post(r, "abc", `{"quantity":1}`)
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	first := post(r, "abc", `{"quantity":1}`)
	require.Equal(t, http.StatusCreated, first.Code)
	require.NotNil(t, nested)
	assert.Equal(t, http.StatusConflict, nested.Code)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	// Once finished, the same retry is replayed.
	replay := post(r, "abc", `{"quantity":1}`)
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
