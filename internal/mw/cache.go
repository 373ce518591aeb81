package mw

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// CacheStatusHeader reports whether a read was served from the snapshot
// cache ("HIT") or by the handler ("MISS").
const CacheStatusHeader = "X-Cache"

// ReadCache holds short-lived snapshots of the dashboard read endpoints. The
// machine list is polled every second by every open dashboard, while state
// only changes on a tick or a mutation, so one snapshot serves all of them.
type ReadCache struct {
	store *cache.Cache
	ttl   time.Duration
}

// NewReadCache creates a cache whose snapshots live for ttl.
func NewReadCache(ttl time.Duration) *ReadCache {
	return &ReadCache{store: cache.New(ttl, 10*ttl), ttl: ttl}
}

type snapshot struct {
	contentType string
	body        []byte
}

type recordingWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// snapshotKey is the path plus the sorted query, so ?limit=5&x=1 and
// ?x=1&limit=5 share an entry.
func snapshotKey(r *http.Request) string {
	q := r.URL.Query().Encode()
	if q == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + q
}

// Serve answers GET requests from a snapshot when one is fresh. Only 200 JSON
// bodies are kept; errors always reach the handler.
func (rc *ReadCache) Serve() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := snapshotKey(c.Request)
		if v, ok := rc.store.Get(key); ok {
			snap := v.(snapshot)
			c.Header(CacheStatusHeader, "HIT")
			c.Data(http.StatusOK, snap.contentType, snap.body)
			c.Abort()
			return
		}

		c.Header(CacheStatusHeader, "MISS")
		rw := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = rw
		c.Next()

		ct := rw.Header().Get("Content-Type")
		if rw.Status() == http.StatusOK && strings.HasPrefix(ct, "application/json") {
			rc.store.Set(key, snapshot{contentType: ct, body: rw.buf.Bytes()}, rc.ttl)
		}
	}
}

// FlushOnWrite drops every snapshot after a successful non-GET request, so a
// start or stop is visible on the next poll.
func (rc *ReadCache) FlushOnWrite() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			return
		}
		if c.Writer.Status() < http.StatusBadRequest {
			rc.store.Flush()
		}
	}
}
