// Package graphmodel defines the property-graph data model shared by the
// indexing pipeline and the query engine: entities, text units, documents,
// relations, communities, and the transient triplets used by ToG reasoning.
package graphmodel

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// EntityType is an open vocabulary with a default set; unrecognized values
// are accepted as-is (OTHER is the fallback when extraction can't decide).
type EntityType string

const (
	EntityPerson      EntityType = "PERSON"
	EntityOrganization EntityType = "ORGANIZATION"
	EntityGeo         EntityType = "GEO"
	EntityEvent       EntityType = "EVENT"
	EntityProduct     EntityType = "PRODUCT"
	EntityFacility    EntityType = "FACILITY"
	EntityWorkOfArt   EntityType = "WORK_OF_ART"
	EntityLaw         EntityType = "LAW"
	EntityConcept     EntityType = "CONCEPT"
	EntityOther       EntityType = "OTHER"
)

// Entity is a typed real-world subject, identified by (name, type).
type Entity struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Type         EntityType `json:"type"`
	Description  string     `json:"description"`
	Confidence   float64    `json:"confidence"`
	MentionCount int        `json:"mention_count"`
	Aliases      []string   `json:"aliases"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Fingerprint returns the deterministic identity hash for (name, type): the
// first 32 hex digits of sha256(normalized(name) + "\x00" + type). Equality
// of entities is by this value.
func Fingerprint(name string, typ EntityType) string {
	norm := NormalizeName(name)
	h := sha256.Sum256([]byte(norm + "\x00" + string(typ)))
	return hex.EncodeToString(h[:])[:32]
}

// NormalizeName case-folds and trims whitespace for identity comparisons.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// AddAlias appends name to e.Aliases if not already present (case-insensitive).
func (e *Entity) AddAlias(name string) {
	norm := NormalizeName(name)
	if norm == NormalizeName(e.Name) {
		return
	}
	for _, a := range e.Aliases {
		if NormalizeName(a) == norm {
			return
		}
	}
	e.Aliases = append(e.Aliases, name)
}

// TextUnit is a chunk of source text with byte offsets into its document.
type TextUnit struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Text       string    `json:"text"`
	StartChar  int       `json:"start_char"`
	EndChar    int       `json:"end_char"`
	CreatedAt  time.Time `json:"created_at"`
}

// DocumentStatus is the lifecycle state of an ingested Document.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

// Document is a logical source artifact; the core stores metadata only.
type Document struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	FilePath        string         `json:"file_path"`
	ContentHash     string         `json:"content_hash"`
	Version         int            `json:"version"`
	LastProcessedAt time.Time      `json:"last_processed_at"`
	Status          DocumentStatus `json:"status"`
}

// Relation is a typed directed edge between two Entities. At most one edge
// of a given (source, type, target) triple may exist; confidence is take-max.
type Relation struct {
	ID          string  `json:"id"`
	SourceID    string  `json:"source_id"`
	TargetID    string  `json:"target_id"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Strength    int     `json:"strength"`
}

// Significance is the coarse importance bucket assigned by summarization.
type Significance string

const (
	SignificanceLow    Significance = "low"
	SignificanceMedium Significance = "medium"
	SignificanceHigh   Significance = "high"
)

// Community is a modularity-based cluster of entities at a given hierarchy level.
type Community struct {
	ID              int          `json:"id"`
	Level           int          `json:"level"`
	EntityIDs       []string     `json:"entity_ids"`
	Summary         string       `json:"summary"`
	Themes          []string     `json:"themes"`
	Significance    Significance `json:"significance"`
	SummaryTimestamp time.Time   `json:"summary_timestamp"`
}

// Triplet is a transient evidence record produced during ToG reasoning.
// Equality is by (Subject, Relation, Object).
type Triplet struct {
	Subject    string  `json:"subject"`
	Relation   string  `json:"relation"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
	SourceStep int     `json:"source_step"`
}

// Key returns the (subject, relation, object) identity used for set membership.
func (t Triplet) Key() string {
	return t.Subject + "\x00" + t.Relation + "\x00" + t.Object
}
