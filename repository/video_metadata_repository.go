package repository

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/echo-labs/echo/models"
)

// MetadataPatch carries the fields one pipeline stage produced. Nil pointers
// and nil collections mean "not produced", never "clear".
type MetadataPatch struct {
	Title           *string
	Description     *string
	Transcript      *string
	TranscriptRef   *string
	ThumbnailRef    *string
	Resolution      *string
	Format          *string
	ShowNotes       *string
	DurationSeconds *float64
	Tags            []string
	Chapters        []models.Chapter
	SubtitleRefs    map[string]string
}

func (p MetadataPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Transcript == nil &&
		p.TranscriptRef == nil && p.ThumbnailRef == nil && p.Resolution == nil &&
		p.Format == nil && p.ShowNotes == nil && p.DurationSeconds == nil &&
		p.Tags == nil && p.Chapters == nil && p.SubtitleRefs == nil
}

type VideoMetadataRepository interface {
	GetByJobID(jobID uuid.UUID) (*models.VideoMetadata, error)
	Upsert(jobID uuid.UUID, patch MetadataPatch) (*models.VideoMetadata, error)
}

type VideoMetadataRepositoryImpl struct {
	db *gorm.DB
}

func NewVideoMetadataRepository(db *gorm.DB) VideoMetadataRepository {
	return &VideoMetadataRepositoryImpl{db: db}
}

func (r *VideoMetadataRepositoryImpl) GetByJobID(jobID uuid.UUID) (*models.VideoMetadata, error) {
	var meta models.VideoMetadata
	err := r.db.Where("job_id = ?", jobID).First(&meta).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &meta, nil
}

// Upsert creates or merges the single metadata record of a job. Merge
// semantics are strictly additive: a non-nil patch field replaces the stored
// value, a nil one leaves it alone, and map-valued fields are unioned. Stages
// run independently and may land out of order, so two disjoint patches must
// yield the union of both.
func (r *VideoMetadataRepositoryImpl) Upsert(jobID uuid.UUID, patch MetadataPatch) (*models.VideoMetadata, error) {
	var meta models.VideoMetadata
	err := r.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("job_id = ?", jobID).
			First(&meta).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			meta = models.VideoMetadata{JobID: jobID}
		case err != nil:
			return err
		}

		if err := ApplyPatch(&meta, patch); err != nil {
			return err
		}
		return tx.Save(&meta).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert metadata for job %s: %w", jobID, err)
	}
	return &meta, nil
}

// ApplyPatch merges a patch into a metadata record with the additive
// semantics described on Upsert.
func ApplyPatch(meta *models.VideoMetadata, patch MetadataPatch) error {
	if patch.Title != nil {
		meta.Title = patch.Title
	}
	if patch.Description != nil {
		meta.Description = patch.Description
	}
	if patch.Transcript != nil {
		meta.Transcript = patch.Transcript
	}
	if patch.TranscriptRef != nil {
		meta.TranscriptRef = patch.TranscriptRef
	}
	if patch.ThumbnailRef != nil {
		meta.ThumbnailRef = patch.ThumbnailRef
	}
	if patch.Resolution != nil {
		meta.Resolution = patch.Resolution
	}
	if patch.Format != nil {
		meta.Format = patch.Format
	}
	if patch.ShowNotes != nil {
		meta.ShowNotes = patch.ShowNotes
	}
	if patch.DurationSeconds != nil {
		meta.DurationSeconds = patch.DurationSeconds
	}
	if patch.Tags != nil {
		raw, err := json.Marshal(patch.Tags)
		if err != nil {
			return err
		}
		meta.Tags = datatypes.JSON(raw)
	}
	if patch.Chapters != nil {
		raw, err := json.Marshal(patch.Chapters)
		if err != nil {
			return err
		}
		meta.Chapters = datatypes.JSON(raw)
	}
	if patch.SubtitleRefs != nil {
		merged := map[string]string{}
		if len(meta.SubtitleRefs) > 0 {
			if err := json.Unmarshal(meta.SubtitleRefs, &merged); err != nil {
				return fmt.Errorf("decode subtitle refs: %w", err)
			}
		}
		for format, ref := range patch.SubtitleRefs {
			merged[format] = ref
		}
		raw, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		meta.SubtitleRefs = datatypes.JSON(raw)
	}
	return nil
}
