package db

import (
	"device_loan_service/models"
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
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
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
		&models.User{},
		&models.Device{},
		&models.ChildDevice{},
		&models.Loan{},
		&models.LoanItem{},
		&models.LoanHistory{},
		&models.ConditionChangeRequest{},
	); err != nil {
		return err
	}

	// Loan number and assignment letter are unique among live (non-deleted)
	// loans; the loan-number index also backstops the advisory-locked sequence.
	if err := db.Exec(fmt.Sprintf(`
	  CREATE UNIQUE INDEX IF NOT EXISTS %s_number_live
	  ON %s (loan_number)
	  WHERE deleted_at IS NULL;
	`, models.LoanTable, models.LoanTable)).Error; err != nil {
		return err
	}
	if err := db.Exec(fmt.Sprintf(`
	  CREATE UNIQUE INDEX IF NOT EXISTS %s_letter_live
	  ON %s (assignment_letter_no)
	  WHERE deleted_at IS NULL;
	`, models.LoanTable, models.LoanTable)).Error; err != nil {
		return err
	}

	// Availability scans join items to live ACTIVE/OVERDUE loans per device.
	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_device_ref
	  ON %s (device_id, child_device_id);
	`, models.LoanItemTable, models.LoanItemTable)).Error; err != nil {
		return err
	}

	return nil
}
