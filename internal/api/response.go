package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response is the envelope of every BFF answer
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// sendResponse writes a successful envelope
func sendResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// sendError writes the envelope err maps to and aborts the chain
func (r *Router) sendError(c *gin.Context, err error) {
	apiErr := errorFor(err)
	if apiErr.Status() >= http.StatusInternalServerError {
		r.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
	} else {
		r.logger.Debug("Request rejected",
			zap.String("path", c.FullPath()),
			zap.Int("code", apiErr.Code),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(apiErr.Status(), Response{
		Code:    apiErr.Code,
		Message: apiErr.Message,
	})
}
