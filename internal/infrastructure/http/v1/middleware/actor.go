package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "advisorcrm/internal/core/context"
)

const (
	HeaderAdvisorID = "X-Advisor-ID"
	HeaderFirmID    = "X-Firm-ID"
)

// Actor puts the acting advisor into the request context so logs and audit
// entries can name them. Authentication happens upstream; requests without
// the header run anonymously.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if advisorID := c.GetHeader(HeaderAdvisorID); advisorID != "" {
			ctx := appctx.WithActor(c.Request.Context(), &appctx.Actor{
				AdvisorID: advisorID,
				FirmID:    c.GetHeader(HeaderFirmID),
			})
			c.Request = c.Request.WithContext(ctx)
			c.Set("advisor_id", advisorID)
		}
		c.Next()
	}
}
