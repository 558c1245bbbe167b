// Package catalog persists finished room recordings and the files they produced.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dkeye/Meet/internal/config"
)

type Kind string

const (
	KindComposite Kind = "composite"
	KindScreen    Kind = "screen"
	KindCamera    Kind = "camera"
)

type Recording struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	RoomID    string          `gorm:"index;size:255" json:"room_id"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
	Title     string          `gorm:"size:255" json:"title"`
	Files     []RecordingFile `gorm:"constraint:OnDelete:CASCADE" json:"files,omitempty"`
}

type RecordingFile struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	RecordingID uint   `gorm:"index" json:"recording_id"`
	User        string `gorm:"size:255" json:"user"`
	FilePath    string `gorm:"size:1024" json:"file_path"`
	Kind        Kind   `gorm:"size:32" json:"kind"`
}

// Open connects using cfg.Driver (sqlite, postgres or mysql) and migrates the schema.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "postgres":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
				cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
		}
		dialector = postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true})
	case "mysql":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
				cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
		}
		dialector = mysql.Open(dsn)
	case "sqlite", "":
		if dir := filepath.Dir(cfg.DSN); cfg.DSN != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create catalog dir: %w", err)
			}
		}
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&Recording{}, &RecordingFile{}); err != nil {
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	log.Info().Str("module", "catalog").Str("driver", cfg.Driver).Msg("catalog ready")
	return db, nil
}
