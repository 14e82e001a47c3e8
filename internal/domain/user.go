package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role type to distinguish between user roles
type Role string

const (
	RoleTrainer  Role = "trainer"
	RoleCustomer Role = "customer"
)

// User represents a user in the system (either a Trainer or a Customer).
// Accounts are created by the auth service; this service only reads them.
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Email     string             `bson:"email" json:"email"`
	Role      Role               `bson:"role" json:"role"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`

	// --- Trainer-specific ---
	CustomerIDs []primitive.ObjectID `bson:"customerIds,omitempty" json:"customerIds,omitempty"`

	// --- Customer-specific ---
	TrainerID *primitive.ObjectID `bson:"trainerId,omitempty" json:"trainerId,omitempty"`
}

func (u *User) IsTrainer() bool {
	return u.Role == RoleTrainer
}

func (u *User) IsCustomer() bool {
	return u.Role == RoleCustomer
}

// Identity is what the auth collaborator hands to the wizard: who is operating it.
type Identity struct {
	UserID primitive.ObjectID `json:"userId"`
	Role   Role               `json:"role"`
}

func (i Identity) IsTrainer() bool {
	return i.Role == RoleTrainer
}
