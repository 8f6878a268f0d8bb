package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Collection names for every entity in the store.
const (
	CollectionMunicipalities = "municipalities"
	CollectionSchools        = "schools"
	CollectionParticipants   = "participants"
	CollectionResults        = "results"
)

// Base carries the fields shared by every stored document.
type Base struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// Touch stamps the document for a write. CreatedAt is only set once.
func (b *Base) Touch(now time.Time) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}
