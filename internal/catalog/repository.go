package catalog

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("catalog: recording not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Finalize inserts rec and its files in one transaction. IDs are filled in on success.
func (r *Repository) Finalize(ctx context.Context, rec *Recording, files []RecordingFile) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec.Files = nil
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("insert recording: %w", err)
		}
		for i := range files {
			files[i].RecordingID = rec.ID
		}
		if len(files) > 0 {
			if err := tx.Create(&files).Error; err != nil {
				return fmt.Errorf("insert recording files: %w", err)
			}
		}
		rec.Files = files
		return nil
	})
}

// List returns recordings newest first, optionally restricted to one room.
func (r *Repository) List(ctx context.Context, roomID string) ([]Recording, error) {
	var out []Recording
	q := r.db.WithContext(ctx).Order("id DESC")
	if roomID != "" {
		q = q.Where("room_id = ?", roomID)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	return out, nil
}

// Get loads one recording with its files.
func (r *Repository) Get(ctx context.Context, id uint) (*Recording, error) {
	var rec Recording
	err := r.db.WithContext(ctx).Preload("Files").First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recording %d: %w", id, err)
	}
	return &rec, nil
}
