package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"clipsync/internal/domain"
)

// MigrateDB 使用 AutoMigrate 创建或更新 users、devices、rooms 表。
// rooms.membership_key 上的唯一索引依赖 domain.Room 的 GORM 标签。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	models := []interface{}{&domain.User{}, &domain.Device{}, &domain.Room{}}
	for _, model := range models {
		if err := db.AutoMigrate(model); err != nil {
			logrus.Errorf("Failed to auto-migrate %T: %v", model, err)
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}

	logrus.Info("Database migration completed successfully")
	return nil
}
