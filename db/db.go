package db

import (
	"Gin_postgres_redis_lab_stock/models"
	"fmt"
	"log"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func ConnectDB() *gorm.DB {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}

	if err := Migrate(DB); err != nil {
		log.Fatal("Failed to migrate models: ", err)
	}
	log.Println("Database connected")
	return DB
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{}, &models.Invite{},
		&models.Component{}, &models.BorrowRequest{},
		&models.Loan{}, &models.AuditEntry{},
	); err != nil {
		return err
	}

	// 数据库层兜底：available 永远在 [0, quantity] 区间内，
	// 即使有代码绕过台账也写不出脏数据
	if err := db.Exec(fmt.Sprintf(`
	  DO $$ BEGIN
	    ALTER TABLE %s ADD CONSTRAINT %s_available_range
	      CHECK (available >= 0 AND available <= quantity);
	  EXCEPTION WHEN duplicate_object THEN NULL; END $$;
	`, models.ComponentTable, models.ComponentTable)).Error; err != nil {
		return err
	}

	// 在借记录查询（对账、管理列表）走这个部分索引
	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_open_component
	  ON %s (component_id)
	  WHERE returned_at IS NULL;
	`, models.LoanTable, models.LoanTable)).Error; err != nil {
		return err
	}

	// 待审批列表
	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_pending_created
	  ON %s (created_at DESC)
	  WHERE status = 'pending';
	`, models.RequestTable, models.RequestTable)).Error; err != nil {
		return err
	}

	// 审计按元件 + 时间倒序翻页
	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_component_created_desc
	  ON %s (component_id, created_at DESC);
	`, models.AuditTable, models.AuditTable)).Error; err != nil {
		return err
	}

	return nil
}
