package repository

import (
	"errors"
	"fmt"

	"go-inventory-ledger/internal/model"

	"gorm.io/gorm"
)

// PrivilegeRepository serves the fixed privilege catalog.
type PrivilegeRepository interface {
	FindByCodes(codes []string) ([]model.Privilege, error)
	FindAll() ([]model.Privilege, error)
	// SeedDefaults inserts missing catalog entries and returns the full set.
	SeedDefaults() ([]model.Privilege, error)
}

type RoleRepository interface {
	FindAll() ([]model.Role, error)
	FindByID(id uint) (*model.Role, error)
	FindByCode(code string) (*model.Role, error)
	// SeedDefaults creates missing roles and grants privileges to any role
	// that has none yet. Existing grants are left alone.
	SeedDefaults(all []model.Privilege) error
}

var ErrRoleNotFound = errors.New("role not found")

type privilegeRepo struct {
	db *gorm.DB
}

func NewPrivilegeRepo(db *gorm.DB) PrivilegeRepository {
	return &privilegeRepo{db: db}
}

func (r *privilegeRepo) FindByCodes(codes []string) ([]model.Privilege, error) {
	var privileges []model.Privilege
	if len(codes) == 0 {
		return privileges, nil
	}
	err := r.db.Where("code IN ?", codes).Order("code").Find(&privileges).Error
	return privileges, err
}

func (r *privilegeRepo) FindAll() ([]model.Privilege, error) {
	var privileges []model.Privilege
	err := r.db.Order("id").Find(&privileges).Error
	return privileges, err
}

func (r *privilegeRepo) SeedDefaults() ([]model.Privilege, error) {
	for _, p := range model.DefaultPrivileges {
		p := p
		if err := r.db.Where(model.Privilege{Code: p.Code}).Attrs(model.Privilege{Name: p.Name}).FirstOrCreate(&p).Error; err != nil {
			return nil, fmt.Errorf("seed privilege %s: %w", p.Code, err)
		}
	}
	return r.FindAll()
}

type roleRepo struct {
	db *gorm.DB
}

func NewRoleRepo(db *gorm.DB) RoleRepository {
	return &roleRepo{db: db}
}

func (r *roleRepo) FindAll() ([]model.Role, error) {
	var roles []model.Role
	err := r.db.Preload("Privileges").Order("id").Find(&roles).Error
	return roles, err
}

func (r *roleRepo) FindByID(id uint) (*model.Role, error) {
	var role model.Role
	if err := r.db.Preload("Privileges").First(&role, id).Error; err != nil {
		return nil, notFound(err, ErrRoleNotFound)
	}
	return &role, nil
}

func (r *roleRepo) FindByCode(code string) (*model.Role, error) {
	var role model.Role
	if err := r.db.Preload("Privileges").Where("code = ?", code).First(&role).Error; err != nil {
		return nil, notFound(err, ErrRoleNotFound)
	}
	return &role, nil
}

func (r *roleRepo) SeedDefaults(all []model.Privilege) error {
	grants := map[string][]model.Privilege{
		model.RoleMasterAdmin: all,
		model.RoleAdmin:       model.AdminPrivileges(all),
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, def := range model.DefaultRoles {
			role := def
			err := tx.Where(model.Role{Code: def.Code}).
				Attrs(model.Role{Name: def.Name, Description: def.Description}).
				FirstOrCreate(&role).Error
			if err != nil {
				return fmt.Errorf("seed role %s: %w", def.Code, err)
			}
			if tx.Model(&role).Association("Privileges").Count() > 0 {
				continue
			}
			if err := tx.Model(&role).Association("Privileges").Replace(grants[def.Code]); err != nil {
				return fmt.Errorf("grant privileges to %s: %w", def.Code, err)
			}
		}
		return nil
	})
}
