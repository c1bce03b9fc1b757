package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

const (
	ROLE_USER       = "user"
	ROLE_ADMIN      = "admin"
	ROLE_SUPERADMIN = "superadmin"
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

// Account is the person-level identity. Accounts are deactivated via Status,
// never deleted.
type Account struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email       string     `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Password    string     `gorm:"type:text" json:"-" validate:"required,min=6"`
	Role        string     `gorm:"type:varchar(50);default:'user'" json:"role" validate:"oneof=user admin superadmin"`
	Status      string     `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	MemberID    *uint      `gorm:"index" json:"member_id,omitempty"`
	LastLoginAt *time.Time `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *Account) Validate() error {
	v := validator.New()

	return v.Struct(a)
}

// IsAdministrative reports whether the account role overrides billing state.
func (a *Account) IsAdministrative() bool {
	return a.Role == ROLE_ADMIN || a.Role == ROLE_SUPERADMIN
}

func CreateAccount(name string, email string, password string) (*Account, error) {
	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	a := &Account{
		Name:     name,
		Email:    email,
		Password: pw,
		Role:     ROLE_USER,
		Status:   STATUS_ACTIVE,
	}

	err = a.Validate()
	if err != nil {
		return nil, err
	}

	return a, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}
