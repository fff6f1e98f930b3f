package professor

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/grader/core"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("professor not found")
	ErrEmailExists = errors.New("a professor with this email already exists")
)

type (
	Repository interface {
		// CheckEmailUniqueness returns ErrEmailExists if a professor other than `excludedIDs` uses `email`.
		CheckEmailUniqueness(ctx context.Context, email string, excludedIDs ...int) error
		CreateProfessor(ctx context.Context, prof Professor) (Professor, error)
		// QueryProfessors does a case-insensitive match of QueryFilter.Search on Professor.Name, Email or Department.
		QueryProfessors(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Professor, error)
		GetProfessor(ctx context.Context, id int) (Professor, error)
		GetProfessorByEmail(ctx context.Context, email string) (Professor, error)
		UpdateProfessor(ctx context.Context, prof Professor) (Professor, error)
		DeleteProfessor(ctx context.Context, id int) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()
	return &Service{repo: repo}
}

func (svc *Service) CheckUniqueness(email string, excludedIDs ...int) error {
	if err := svc.repo.CheckEmailUniqueness(context.Background(), email, excludedIDs...); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return errors.Wrap(err, "checking email uniqueness")
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, np NewProfessor) (Professor, error) {
	prof := Professor{
		Name:       np.Name,
		Email:      np.Email,
		Department: np.Department,
		CreatedAt:  time.Now().UTC(),
	}
	if np.Password != "" {
		if err := prof.SetPassword(np.Password); err != nil {
			return Professor{}, errors.Wrap(err, "setting password")
		}
	}
	return svc.repo.CreateProfessor(ctx, prof)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Professor, error) {
	return svc.repo.QueryProfessors(ctx, filter, core.FilterOrderings(ordering, OrderingFields...))
}

func (svc *Service) GetByID(ctx context.Context, id int) (Professor, error) {
	return svc.repo.GetProfessor(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (Professor, error) {
	return svc.repo.GetProfessorByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) Update(ctx context.Context, prof Professor, up UpdateProfessor) (Professor, error) {
	if up.Name != nil {
		prof.Name = *up.Name
	}
	if up.Email != nil {
		prof.Email = *up.Email
	}
	if up.Department != nil {
		prof.Department = *up.Department
	}
	if up.Password != "" {
		if err := prof.SetPassword(up.Password); err != nil {
			return Professor{}, errors.Wrap(err, "setting password")
		}
	}
	return svc.repo.UpdateProfessor(ctx, prof)
}

// SetPassword updates the password of the professor identified by `email`.
func (svc *Service) SetPassword(ctx context.Context, email, pwd string) (Professor, error) {
	prof, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return Professor{}, err
	}
	if err = prof.SetPassword(pwd); err != nil {
		return Professor{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.UpdateProfessor(ctx, prof)
}

// Authenticate returns the professor matching the credentials, or ErrNotFound.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (Professor, error) {
	prof, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return Professor{}, err
	}
	if err = prof.CheckPassword(pwd); err != nil {
		return Professor{}, ErrNotFound
	}
	return prof, nil
}

func (svc *Service) Delete(ctx context.Context, id int) error {
	return svc.repo.DeleteProfessor(ctx, id)
}
