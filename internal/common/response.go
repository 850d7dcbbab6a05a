package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// All JSON endpoints answer with the same envelope. `code` is 0 on success,
// otherwise an application error code (1xxxx input, 4xxxx auth/lookup,
// 5xxxx server/upstream).
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Code: 0, Message: "ok", Data: data})
}

// Created is used by resource-creating endpoints (chats, messages).
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Envelope{Code: 0, Message: "ok", Data: data})
}

func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, Envelope{Code: code, Message: msg, Data: nil})
}
