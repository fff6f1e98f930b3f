package inmemdb

import (
	"context"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/professor"
)

type professorRepository struct {
	db *DB
}

var _ professor.Repository = (*professorRepository)(nil) // interface compliance check

func NewProfessorRepository(db *DB) professor.Repository {
	return &professorRepository{db: db}
}

func (repo *professorRepository) query() []professor.Professor {
	profs := make([]professor.Professor, 0, len(repo.db.professors))
	for _, p := range repo.db.professors {
		profs = append(profs, *p)
	}
	return profs
}

func (repo *professorRepository) CheckEmailUniqueness(_ context.Context, email string, excludedIDs ...int) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	excluded := make(map[int]bool, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = true
	}
	for _, p := range repo.db.professors {
		if p.Email == email && !excluded[p.ID] {
			return professor.ErrEmailExists
		}
	}
	return nil
}

func (repo *professorRepository) CreateProfessor(_ context.Context, prof professor.Professor) (professor.Professor, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	prof.ID = repo.db.nextPK("professors")
	repo.db.professors[prof.ID] = &prof
	return prof, nil
}

func (repo *professorRepository) QueryProfessors(_ context.Context, filter *professor.QueryFilter, ordering []core.DBOrdering) ([]professor.Professor, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	profs := make([]professor.Professor, 0, len(repo.db.professors))
	for _, p := range repo.query() {
		if filter != nil && filter.Search != "" &&
			!(containsFold(p.Name, filter.Search) || containsFold(p.Email, filter.Search) || containsFold(p.Department, filter.Search)) {
			continue
		}
		profs = append(profs, p)
	}

	sortBy(
		len(profs),
		func(i, j int) { profs[i], profs[j] = profs[j], profs[i] },
		ordering,
		func(i, j int, field string) int {
			a, b := profs[i], profs[j]
			switch field {
			case "name":
				return cmpString(a.Name, b.Name)
			case "email":
				return cmpString(a.Email, b.Email)
			case "department":
				return cmpString(a.Department, b.Department)
			case "created_at":
				return cmpTime(a.CreatedAt, b.CreatedAt)
			case "id":
				return cmpInt(a.ID, b.ID)
			}
			return 0
		},
		func(i int) int { return profs[i].ID },
	)
	return profs, nil
}

func (repo *professorRepository) GetProfessor(_ context.Context, id int) (professor.Professor, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.professors[id]; ok {
		return *p, nil
	}
	return professor.Professor{}, professor.ErrNotFound
}

func (repo *professorRepository) GetProfessorByEmail(_ context.Context, email string) (professor.Professor, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, p := range repo.db.professors {
		if p.Email == email {
			return *p, nil
		}
	}
	return professor.Professor{}, professor.ErrNotFound
}

func (repo *professorRepository) UpdateProfessor(_ context.Context, prof professor.Professor) (professor.Professor, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.professors[prof.ID]
	if !ok {
		return professor.Professor{}, professor.ErrNotFound
	}
	orig.Name = prof.Name
	orig.Email = prof.Email
	orig.Department = prof.Department
	if prof.PasswordHash != nil {
		orig.PasswordHash = prof.PasswordHash
	}
	return *orig, nil
}

// DeleteProfessor cascades to the professor's assignments.
func (repo *professorRepository) DeleteProfessor(_ context.Context, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.professors[id]; !ok {
		return professor.ErrNotFound
	}
	delete(repo.db.professors, id)
	for pk, a := range repo.db.assignments {
		if a.ProfessorID == id {
			repo.db.deleteAssignment(pk)
		}
	}
	return nil
}
