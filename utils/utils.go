package utils

import (
	"Gamebuddies/utils/apperr"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Logger logs one line per request. Health and ping requests are logged at debug.
func Logger() gin.HandlerFunc {
	log := logrus.WithField("component", "http")
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		entry := log.WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"latency": time.Since(startTime),
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Warn("request failed")
		case c.Request.URL.Path == "/ping" || c.Request.URL.Path == "/api/proxy/health":
			entry.Debug("request")
		default:
			entry.Info("request")
		}
	}
}

// ErrorHandler renders the last error a handler attached with c.Error, if
// the handler did not write a response itself
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		e := apperr.As(err)
		c.JSON(apperr.HTTPStatus(e), ErrorBody(e))
	}
}

// ErrorBody is the JSON shape of every error answered over HTTP
func ErrorBody(e *apperr.Error) gin.H {
	body := gin.H{"code": e.Code, "message": e.Message}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	return body
}
