package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/class-measures-api/pkg/middleware/requestid"
)

const (
	responseMetaKey  = "response_meta"
	requestStartKey  = "request_start"
	cacheHitMetaKey  = "cache_hit"
	requestIDMetaKey = "request_id"
	elapsedMetaKey   = "processing_time_ms"
)

// ResponseMeta records the request start and an empty meta map that handlers
// fill in before rendering the envelope.
func ResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(requestStartKey, time.Now())
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
	}
}

// SetMeta stores one meta entry for the current response.
func SetMeta(c *gin.Context, key string, value interface{}) {
	if c == nil {
		return
	}
	meta, ok := c.Get(responseMetaKey)
	store, typed := meta.(map[string]interface{})
	if !ok || !typed {
		store = map[string]interface{}{}
		c.Set(responseMetaKey, store)
	}
	store[key] = value
}

// SetCacheHit marks whether the payload was served from the analytics cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, cacheHitMetaKey, hit)
}

// Meta returns a copy of the stored entries plus the request ID and, when
// ResponseMeta ran, the elapsed processing time.
func Meta(c *gin.Context) map[string]interface{} {
	out := map[string]interface{}{}
	if c == nil {
		return out
	}
	if stored, ok := c.Get(responseMetaKey); ok {
		if typed, ok := stored.(map[string]interface{}); ok {
			for k, v := range typed {
				out[k] = v
			}
		}
	}
	if id := requestid.Value(c); id != "" {
		out[requestIDMetaKey] = id
	}
	if start, ok := c.Get(requestStartKey); ok {
		if t, ok := start.(time.Time); ok {
			if _, set := out[elapsedMetaKey]; !set {
				out[elapsedMetaKey] = time.Since(t).Milliseconds()
			}
		}
	}
	return out
}
