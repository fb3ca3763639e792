package repository

import (
	"gorm.io/gorm"

	"github.com/oneboxhq/onebox/interfaces"
	"github.com/oneboxhq/onebox/internal/models"
)

type Repositories struct {
	EmailIndex interfaces.EmailIndex
}

func InitRepositories(db *gorm.DB, defaultPageSize int) *Repositories {
	return &Repositories{
		EmailIndex: NewEmailIndexRepository(db, defaultPageSize),
	}
}

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Email{},
	)
}
