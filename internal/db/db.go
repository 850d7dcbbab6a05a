package db

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/joojle/joojle-chat/internal/chat"
	"github.com/joojle/joojle-chat/internal/models"
)

func Connect(dsn string) (*gorm.DB, error) {
	return gorm.Open(mysql.Open(dsn), &gorm.Config{})
}

func AutoMigrate(g *gorm.DB) error {
	return g.AutoMigrate(&models.User{}, &chat.Chat{}, &chat.Message{})
}
