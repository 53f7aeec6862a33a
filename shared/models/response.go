package models

import "github.com/gin-gonic/gin"

// ErrorResponse - стандартное тело ошибки edge-сервиса.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// AbortJSONError пишет ErrorResponse и прерывает цепочку gin.
func AbortJSONError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Success: false, Code: code, Message: message})
}
