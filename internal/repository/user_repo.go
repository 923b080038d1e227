package repository

import (
	"errors"
	"strings"
	"time"

	"go-inventory-ledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository stores accounts together with their role and direct grants.
// Lookups by email are case-insensitive.
type UserRepository interface {
	FindByEmail(email string) (*model.User, error)
	FindByID(id uuid.UUID) (*model.User, error)
	FindAll() ([]model.User, error)
	FindPrimaryApprovers() ([]model.User, error)
	Create(user *model.User) error
	Update(user *model.User) error
	Delete(id uuid.UUID) error
	UpdatePassword(userID uuid.UUID, hashedPassword string) error
	UpdatePrivileges(userID uuid.UUID, privileges []model.Privilege) error
	UpdateTokenVersion(userID uuid.UUID, version string) error
	UpdateLastSeen(userID uuid.UUID) error
	SetPrimaryApprover(userID uuid.UUID, primary bool) error
}

type userRepo struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) UserRepository {
	return &userRepo{db}
}

// withAccess loads what the auth layer needs to build a session.
func (r *userRepo) withAccess() *gorm.DB {
	return r.db.Preload("Role").Preload("Privileges")
}

func (r *userRepo) FindByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.withAccess().Where("LOWER(email) = ?", normalizeEmail(email)).First(&user).Error
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return &user, nil
}

func (r *userRepo) FindByID(id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := r.withAccess().First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return &user, nil
}

func (r *userRepo) FindAll() ([]model.User, error) {
	var users []model.User
	err := r.withAccess().Order("full_name, email").Find(&users).Error
	return users, err
}

// FindPrimaryApprovers returns active users allowed to review approvals.
func (r *userRepo) FindPrimaryApprovers() ([]model.User, error) {
	var users []model.User
	err := r.db.Where("is_primary_approver = ? AND is_active = ?", true, true).
		Order("created_at").Find(&users).Error
	return users, err
}

func (r *userRepo) Create(user *model.User) error {
	user.Email = normalizeEmail(user.Email)
	return r.db.Create(user).Error
}

func (r *userRepo) Update(user *model.User) error {
	user.Email = normalizeEmail(user.Email)
	return r.db.Omit(clause.Associations).Save(user).Error
}

func (r *userRepo) Delete(id uuid.UUID) error {
	return r.updated(r.db.Delete(&model.User{}, "id = ?", id))
}

func (r *userRepo) UpdatePassword(userID uuid.UUID, hashedPassword string) error {
	return r.setColumn(userID, "password", hashedPassword)
}

func (r *userRepo) UpdatePrivileges(userID uuid.UUID, privileges []model.Privilege) error {
	user := model.User{}
	user.ID = userID
	if err := r.db.Select("id").First(&user, "id = ?", userID).Error; err != nil {
		return notFound(err, ErrUserNotFound)
	}
	return r.db.Model(&user).Association("Privileges").Replace(privileges)
}

func (r *userRepo) UpdateTokenVersion(userID uuid.UUID, version string) error {
	return r.setColumn(userID, "token_version", version)
}

func (r *userRepo) UpdateLastSeen(userID uuid.UUID) error {
	return r.setColumn(userID, "last_seen_at", time.Now().UTC())
}

func (r *userRepo) SetPrimaryApprover(userID uuid.UUID, primary bool) error {
	return r.setColumn(userID, "is_primary_approver", primary)
}

func (r *userRepo) setColumn(userID uuid.UUID, column string, value interface{}) error {
	return r.updated(r.db.Model(&model.User{}).Where("id = ?", userID).Update(column, value))
}

func (r *userRepo) updated(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
