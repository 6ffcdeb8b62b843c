package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	apperrors "pocketledger/internal/errors"
	"pocketledger/internal/logger"
)

// ErrorBody renders err as the JSON error envelope.
func ErrorBody(appErr *apperrors.AppError) gin.H {
	body := gin.H{
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	if appErr.Details != "" {
		body["details"] = appErr.Details
	}
	return gin.H{"error": body}
}

func abortWithError(c *gin.Context, appErr *apperrors.AppError) {
	c.AbortWithStatusJSON(appErr.StatusCode, ErrorBody(appErr))
}

// ErrorHandler returns a Gin middleware that converts errors set on the Gin
// context into consistent JSON error responses. AppErrors are returned with
// their code, message and details; unexpected errors are logged and return a
// generic internal error.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		// The last error is the most relevant in a middleware chain.
		err := c.Errors.Last().Err

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			if appErr.Internal != nil {
				logger.Get().Errorw("app error",
					"code", appErr.Code,
					"message", appErr.Message,
					"internal", appErr.Internal.Error(),
					"path", c.Request.URL.Path,
				)
			}
			c.JSON(appErr.StatusCode, ErrorBody(appErr))
			return
		}

		logger.Get().Errorw("unexpected error",
			"error", err.Error(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		c.JSON(apperrors.ErrInternalServer.StatusCode, ErrorBody(apperrors.ErrInternalServer))
	}
}
