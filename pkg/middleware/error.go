package middleware

import (
	"edgegate/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last handler error as a structured JSON body with a
// stable error code, never the raw internal error text.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil || c.Writer.Written() {
			return
		}

		base := errutil.FromError(err.Err)
		c.JSON(base.Code.HTTPStatus(), base.JSON())
	}
}
