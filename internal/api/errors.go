package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/parley/internal/apperr"
	"github.com/ammar1510/parley/internal/logger"
)

var log = logger.New("api")

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusServiceUnavailable
	}
}

// respondError writes err as {"error": message, "kind": kind}.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindDependency {
		log.Error("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(statusFor(kind), gin.H{
		"error": apperr.MessageOf(err),
		"kind":  kind,
	})
}

func respondBindError(c *gin.Context, err error) {
	respondError(c, apperr.Validation(err.Error()))
}
