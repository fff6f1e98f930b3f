package inmemdb

import (
	"context"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/assignment"
)

type assignmentRepository struct {
	db *DB
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(db *DB) assignment.Repository {
	return &assignmentRepository{db: db}
}

func (repo *assignmentRepository) CreateAssignment(_ context.Context, asn assignment.Assignment) (assignment.Assignment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	asn.ID = repo.db.nextPK("assignments")
	asn.AverageScore, asn.IsGraded = nil, false
	repo.db.assignments[asn.ID] = &asn
	return asn, nil
}

func (repo *assignmentRepository) QueryAssignments(_ context.Context, filter *assignment.QueryFilter, ordering []core.DBOrdering) ([]assignment.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	asns := make([]assignment.Assignment, 0, len(repo.db.assignments))
	for _, a := range repo.db.assignments {
		if filter != nil {
			if filter.ProfessorID != 0 && a.ProfessorID != filter.ProfessorID {
				continue
			}
			if filter.Search != "" && !(containsFold(a.Title, filter.Search) || containsFold(a.Description, filter.Search)) {
				continue
			}
		}
		asns = append(asns, *a)
	}

	sortBy(
		len(asns),
		func(i, j int) { asns[i], asns[j] = asns[j], asns[i] },
		ordering,
		func(i, j int, field string) int {
			a, b := asns[i], asns[j]
			switch field {
			case "title":
				return cmpString(a.Title, b.Title)
			case "due_date":
				return cmpTimePtr(a.DueDate, b.DueDate)
			case "max_points":
				return cmpInt(a.MaxPoints, b.MaxPoints)
			case "created_at":
				return cmpTime(a.CreatedAt, b.CreatedAt)
			case "id":
				return cmpInt(a.ID, b.ID)
			}
			return 0
		},
		func(i int) int { return asns[i].ID },
	)
	return asns, nil
}

func (repo *assignmentRepository) GetAssignment(_ context.Context, id int) (assignment.Assignment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if a, ok := repo.db.assignments[id]; ok {
		return *a, nil
	}
	return assignment.Assignment{}, assignment.ErrNotFound
}

func (repo *assignmentRepository) UpdateAssignment(_ context.Context, asn assignment.Assignment) (assignment.Assignment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.assignments[asn.ID]
	if !ok {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	// professor & creation date are immutable
	asn.ProfessorID = orig.ProfessorID
	asn.CreatedAt = orig.CreatedAt
	asn.AverageScore, asn.IsGraded = nil, false
	*orig = asn
	return asn, nil
}

// DeleteAssignment cascades to the assignment's results and reports.
func (repo *assignmentRepository) DeleteAssignment(_ context.Context, id int) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.assignments[id]; !ok {
		return assignment.ErrNotFound
	}
	repo.db.deleteAssignment(id)
	return nil
}
