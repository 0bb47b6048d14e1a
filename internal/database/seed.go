package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/example/cyclebees/internal/logger"
	"github.com/example/cyclebees/internal/models"
	"github.com/example/cyclebees/internal/utils"
)

// SeedAdmin creates the configured admin account if it does not exist yet.
// An empty password disables seeding.
func SeedAdmin(conn *gorm.DB, username, password string) error {
	if username == "" || password == "" {
		logger.Log.Warn().Msg("ADMIN_PASSWORD not set, skipping admin seed")
		return nil
	}

	var existing models.Admin
	err := conn.Where("username = ?", username).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}

	admin := models.Admin{Username: username, PasswordHash: hash}
	if err := conn.Create(&admin).Error; err != nil {
		return err
	}

	logger.Log.Info().Str("username", username).Msg("seeded admin account")
	return nil
}
