package db

import (
	"fmt"

	"github.com/creditstudio/CreditStudio/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates every table the application owns.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(
		&models.Provider{},
		&models.PricingEntry{},
		&models.CurrencyRate{},
		&models.Balance{},
		&models.BalanceTransaction{},
		&models.Service{},
		&models.WorkflowStep{},
		&models.Chat{},
		&models.Message{},
		&models.Generation{},
		&models.Setting{},
	); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	return nil
}
