package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/joojle/joojle-chat/internal/common"
)

func (h *Handler) Health(c *gin.Context) {
	common.OK(c, gin.H{"status": "up"})
}
