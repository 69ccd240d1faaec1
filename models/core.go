package models

import (
	"errors"
	"log"

	"github.com/GrainArc/RoadCollab/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var DB *gorm.DB

func InitDB() {
	var err error
	if config.DSN != "" {
		DB, err = gorm.Open(postgres.Open(config.DSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
	} else {
		// 无postgres配置时使用本地sqlite
		DB, err = gorm.Open(sqlite.Open(config.SqlitePath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			log.Fatalf("Failed to open sqlite database: %v", err)
		}
	}

	// 设置命名策略
	DB.NamingStrategy = schema.NamingStrategy{
		SingularTable: true,
	}

	// 批量迁移所有表
	if err := migrateAllTables(DB); err != nil {
		log.Printf("Failed to migrate tables: %v", err)
	}

	// 初始化默认用户
	initDefaultUser(DB)
}

// migrateAllTables 批量迁移所有表
func migrateAllTables(db *gorm.DB) error {
	models := []interface{}{
		&RoadVersion{},
		&RoadEditRecord{},
		&Village{},
		&LoginUser{},
	}

	return db.AutoMigrate(models...)
}

// initDefaultUser 初始化默认用户
func initDefaultUser(db *gorm.DB) {
	user := LoginUser{
		ID:    1,
		Token: "0",
		Name:  "本地",
	}

	var existingUser LoginUser
	result := db.First(&existingUser, user.ID)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		if err := db.Create(&user).Error; err != nil {
			log.Printf("Failed to create default user: %v", err)
		} else {
			log.Println("Default user created successfully")
		}
	}
}
