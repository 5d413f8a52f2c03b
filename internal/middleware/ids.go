package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appErrors "github.com/noah-isme/class-measures-api/pkg/errors"
	"github.com/noah-isme/class-measures-api/pkg/response"
)

// ValidateIDs rejects identifiers that cannot name a row before they reach
// the database. A malformed path id ("id", "studentId") answers 404 and a
// malformed "*_id" query parameter answers 400.
func ValidateIDs() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, p := range c.Params {
			if !isIDParam(p.Key) {
				continue
			}
			if !validUUID(p.Value) {
				response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "resource not found"))
				c.Abort()
				return
			}
		}
		for key, values := range c.Request.URL.Query() {
			if !strings.HasSuffix(key, "_id") {
				continue
			}
			for _, v := range values {
				if v == "" {
					continue
				}
				if !validUUID(v) {
					response.Error(c, appErrors.Clone(appErrors.ErrValidation, key+" must be a UUID"))
					c.Abort()
					return
				}
			}
		}
		c.Next()
	}
}

func isIDParam(key string) bool {
	return key == "id" || strings.HasSuffix(key, "Id")
}

// validUUID accepts only the canonical 36 character form, which is what the
// uuid columns store.
func validUUID(v string) bool {
	if len(v) != 36 {
		return false
	}
	_, err := uuid.Parse(v)
	return err == nil
}
