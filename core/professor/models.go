package professor

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/grader/core"
)

// OrderingFields lists the fields professors may be ordered by.
var OrderingFields = []string{"id", "name", "email", "department", "created_at"}

type Professor struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Department   string    `json:"department"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

func (p *Professor) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	p.PasswordHash = hash
	return nil
}

func (p *Professor) CheckPassword(pwd string) error {
	if len(p.PasswordHash) == 0 {
		return bcrypt.ErrMismatchedHashAndPassword
	}
	return bcrypt.CompareHashAndPassword(p.PasswordHash, []byte(pwd))
}

// NewProfessor contains information needed to create a new Professor.
type NewProfessor struct {
	Name       string `json:"name" validate:"required,notblank,max=100"`
	Email      string `json:"email" validate:"required,email,max=120"`
	Department string `json:"department" validate:"max=100"`
	Password   string `json:"password" validate:"omitempty,min=8"`
}

func (np *NewProfessor) Validate(validate *validator.Validate, svc *Service) error {
	np.Name = core.CleanString(np.Name)
	np.Email = core.CleanString(np.Email, true /* lower */)
	np.Department = core.CleanString(np.Department)

	if err := validate.Struct(np); err != nil {
		return err
	}
	return svc.CheckUniqueness(np.Email)
}

// UpdateProfessor defines what information may be provided to modify an existing Professor.
// Nil fields are left untouched.
type UpdateProfessor struct {
	Name       *string `json:"name" validate:"omitempty,notblank,max=100"`
	Email      *string `json:"email" validate:"omitempty,email,max=120"`
	Department *string `json:"department" validate:"omitempty,max=100"`
	Password   string  `json:"password" validate:"omitempty,min=8"`
}

func (up *UpdateProfessor) Validate(orig Professor, validate *validator.Validate, svc *Service) error {
	if up.Name != nil {
		name := core.CleanString(*up.Name)
		up.Name = &name
	}
	if up.Email != nil {
		email := core.CleanString(*up.Email, true /* lower */)
		up.Email = &email
	}
	if up.Department != nil {
		dept := core.CleanString(*up.Department)
		up.Department = &dept
	}

	if err := validate.Struct(up); err != nil {
		return err
	}
	if up.Email != nil && *up.Email != orig.Email {
		return svc.CheckUniqueness(*up.Email, orig.ID)
	}
	return nil
}

type QueryFilter struct {
	Search string `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
