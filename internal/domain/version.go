package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProtocolVersion is one entry of a protocol's version history. Entries are
// append-only; a rollback adds a new entry pointing at the restored one.
type ProtocolVersion struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ProtocolID   primitive.ObjectID `bson:"protocolId" json:"protocolId"`
	Version      int                `bson:"version" json:"version"`
	Name         string             `bson:"name" json:"name"`
	Type         ProtocolType       `bson:"type" json:"type"`
	DurationDays int                `bson:"durationDays" json:"durationDays"`
	Intensity    Intensity          `bson:"intensity" json:"intensity"`
	Config       ProtocolConfig     `bson:"config" json:"config"`
	ConfigHash   string             `bson:"configHash" json:"configHash"`
	CreatedBy    primitive.ObjectID `bson:"createdBy" json:"createdBy"`
	RestoredFrom *int               `bson:"restoredFrom,omitempty" json:"restoredFrom,omitempty"`
	ChangeNote   string             `bson:"changeNote,omitempty" json:"changeNote,omitempty"`
	ArchiveKey   string             `bson:"archiveKey,omitempty" json:"archiveKey,omitempty"` // Object storage key of the JSON snapshot
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
}

// Data returns the content-bearing fields of this version.
func (v *ProtocolVersion) Data() ProtocolData {
	return ProtocolData{
		Name:         v.Name,
		Type:         v.Type,
		DurationDays: v.DurationDays,
		Intensity:    v.Intensity,
		Config:       v.Config,
	}
}
