package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountRole is the account's role
type AccountRole = string

// RoleUser is assigned to every self-registered account
const RoleUser AccountRole = "user"

// Account is the persisted user model
type Account struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID   `bun:"id,pk,type:uuid" json:"id"`
	Name          string      `bun:"name,notnull" json:"name"`
	Email         string      `bun:"email,notnull,unique" json:"email"`
	PhoneNumber   string      `bun:"phone_number,notnull,unique" json:"phone_number"`
	PasswordHash  string      `bun:"password_hash,notnull" json:"-"`
	Role          AccountRole `bun:"role,notnull" json:"role"`
	CreatedAt     time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time   `bun:"updated_at,notnull" json:"updated_at"`
}

// PendingRegistration is the account data carried inside an activation
// token. Password holds the bcrypt hash, never the plaintext.
type PendingRegistration struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phone_number"`
}

// ToAccount builds the account record created at activation
func (p PendingRegistration) ToAccount() *Account {
	return &Account{
		Name:         p.Name,
		Email:        p.Email,
		PhoneNumber:  p.PhoneNumber,
		PasswordHash: p.Password,
		Role:         RoleUser,
	}
}
