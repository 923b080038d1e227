package model

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// User is an authenticated actor. IsPrimaryApprover marks the designated
// reviewer of approval requests.
type User struct {
	BaseModel
	Email             string      `gorm:"type:varchar(255);uniqueIndex;not null" json:"email" validate:"required,email"`
	Password          string      `gorm:"type:varchar(255);not null" json:"-"`
	FullName          string      `gorm:"type:varchar(255)" json:"full_name" validate:"required"`
	RoleID            *uint       `gorm:"index" json:"role_id"`
	Role              *Role       `gorm:"foreignKey:RoleID" json:"role,omitempty"`
	IsActive          bool        `gorm:"default:true" json:"is_active"`
	IsPrimaryApprover bool        `gorm:"not null;default:false" json:"is_primary_approver"`
	Privileges        []Privilege `gorm:"many2many:user_privileges;" json:"privileges,omitempty"`
	TokenVersion      string      `gorm:"type:varchar(255);default:''" json:"-"`
	LastSeenAt        *time.Time  `json:"last_seen_at,omitempty"`
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) == nil
}

func (u *User) HasPrivilege(code string) bool {
	for _, p := range u.Privileges {
		if p.Code == code {
			return true
		}
	}
	return false
}

func (u *User) GetPrivilegeCodes() []string {
	codes := make([]string, len(u.Privileges))
	for i, p := range u.Privileges {
		codes[i] = p.Code
	}
	return codes
}

// UserResponse omits credentials.
type UserResponse struct {
	ID                uuid.UUID  `json:"id"`
	Email             string     `json:"email"`
	FullName          string     `json:"full_name"`
	Role              *Role      `json:"role,omitempty"`
	IsActive          bool       `json:"is_active"`
	IsPrimaryApprover bool       `json:"is_primary_approver"`
	LastSeenAt        *time.Time `json:"last_seen_at,omitempty"`
	Privileges        []string   `json:"privileges"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:                u.ID,
		Email:             u.Email,
		FullName:          u.FullName,
		Role:              u.Role,
		IsActive:          u.IsActive,
		IsPrimaryApprover: u.IsPrimaryApprover,
		LastSeenAt:        u.LastSeenAt,
		Privileges:        u.GetPrivilegeCodes(),
	}
}
