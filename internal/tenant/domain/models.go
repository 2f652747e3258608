package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleSuperAdmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleClient     Role = "client"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleClient:
		return true
	default:
		return false
	}
}

// Tenant is the issuing organization printed on invoices.
type Tenant struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"not null" json:"name"`
	Email     string       `gorm:"not null" json:"email"`
	Address   string       `json:"address,omitempty"`
	Phone     string       `json:"phone,omitempty"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (Tenant) TableName() string { return "tenants" }

type User struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	Name      string       `gorm:"not null" json:"name"`
	Email     string       `gorm:"not null" json:"email"`
	Role      Role         `gorm:"type:text;not null" json:"role"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (User) TableName() string { return "users" }
