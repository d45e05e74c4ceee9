package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidDocument = errors.New("invalid curriculum document")

// Levels recognized by the platform, ordered from primary school to the last
// year of lycee. The retrieval filter only ever matches these values.
var Levels = []string{
	"cp", "ce1", "ce2", "cm1", "cm2",
	"sixieme", "cinquieme", "quatrieme", "troisieme",
	"seconde", "premiere", "terminale",
}

// Document is a curriculum document maintained outside the engine. It is the
// unit of ingestion: immutable once indexed except through an explicit reindex.
type Document struct {
	ID          string     `gorm:"primaryKey;size:128" json:"id"`
	Title       string     `gorm:"size:256" json:"title"`
	Content     string     `gorm:"type:mediumtext" json:"content"`
	Level       string     `gorm:"size:32;not null;index:idx_level_subject" json:"level"`
	Subject     string     `gorm:"size:64;not null;index:idx_level_subject" json:"subject"`
	Domain      string     `gorm:"size:128" json:"domain,omitempty"`
	Subdomain   string     `gorm:"size:128" json:"subdomain,omitempty"`
	Source      string     `gorm:"size:256" json:"source,omitempty"`
	SourceType  string     `gorm:"size:64" json:"source_type,omitempty"`
	ContentHash string     `gorm:"size:64" json:"-"`
	IndexedAt   *time.Time `json:"indexed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Document) TableName() string { return "curriculum_documents" }

// Validate rejects malformed documents at the ingestion boundary. Empty content
// is allowed here; the chunker handles it (zero chunks, warning).
func (d *Document) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDocument)
	}
	if strings.TrimSpace(d.Subject) == "" {
		return fmt.Errorf("%w: document %q has no subject", ErrInvalidDocument, d.ID)
	}
	if !ValidLevel(d.Level) {
		return fmt.Errorf("%w: document %q has unknown level %q", ErrInvalidDocument, d.ID, d.Level)
	}
	return nil
}

func ValidLevel(level string) bool {
	for _, l := range Levels {
		if l == level {
			return true
		}
	}
	return false
}
