// Package sqlxrepos implements the domain repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"strings"

	"github.com/trezcool/grader/core"
)

// orderBy renders an ORDER BY clause, always ending on the primary key.
// Orderings must have gone through core.FilterOrderings.
func orderBy(ordering []core.DBOrdering) string {
	clauses := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if ord.Field == "id" {
			continue
		}
		clauses = append(clauses, ord.String())
	}
	idOrd := core.DBOrdering{Field: "id", Ascending: true}
	for _, ord := range ordering {
		if ord.Field == "id" {
			idOrd.Ascending = ord.Ascending
		}
	}
	clauses = append(clauses, idOrd.String())
	return " ORDER BY " + strings.Join(clauses, ", ")
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
