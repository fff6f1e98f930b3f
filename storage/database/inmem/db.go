package inmemdb

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/assignment"
	"github.com/trezcool/grader/core/grading"
	"github.com/trezcool/grader/core/professor"
)

// DB holds every table behind one lock, so cascading deletes stay atomic.
type DB struct {
	mutex sync.RWMutex
	pks   map[string]int

	professors  map[int]*professor.Professor
	assignments map[int]*assignment.Assignment
	results     map[int]*grading.SubmissionResult
	reports     map[int]*grading.Report
}

func Open() *DB {
	return &DB{
		pks:         make(map[string]int),
		professors:  make(map[int]*professor.Professor),
		assignments: make(map[int]*assignment.Assignment),
		results:     make(map[int]*grading.SubmissionResult),
		reports:     make(map[int]*grading.Report),
	}
}

// nextPK must be called with the write lock held.
func (db *DB) nextPK(table string) int {
	db.pks[table]++
	return db.pks[table]
}

// deleteAssignment must be called with the write lock held.
func (db *DB) deleteAssignment(id int) {
	delete(db.assignments, id)
	for pk, r := range db.results {
		if r.AssignmentID == id {
			delete(db.results, pk)
		}
	}
	for pk, r := range db.reports {
		if r.AssignmentID == id {
			delete(db.reports, pk)
		}
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// sortBy orders `n` rows by the given orderings, then by ID.
// cmp(i, j, field) compares rows i and j on field and returns -1, 0 or 1.
func sortBy(n int, swap func(i, j int), ordering []core.DBOrdering, cmp func(i, j int, field string) int, id func(i int) int) {
	sort.Sort(sorter{n: n, swap: swap, less: func(i, j int) bool {
		for _, ord := range ordering {
			c := cmp(i, j, ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return id(i) < id(j)
	}})
}

type sorter struct {
	n    int
	swap func(i, j int)
	less func(i, j int) bool
}

func (s sorter) Len() int           { return s.n }
func (s sorter) Swap(i, j int)      { s.swap(i, j) }
func (s sorter) Less(i, j int) bool { return s.less(i, j) }

func cmpString(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func cmpTimePtr(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1 // nulls last
	case b == nil:
		return -1
	}
	return cmpTime(*a, *b)
}
