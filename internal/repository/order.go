package repository

import (
	"fmt"
	"strings"
)

// orderClause builds an ORDER BY clause from a list of column names, each
// optionally prefixed with '-' for descending. Columns are checked against a
// per-repository whitelist so caller-supplied order fields never reach the
// SQL text unvetted. An empty list falls back to ascending fallback.
func orderClause(order []string, allowed map[string]struct{}, fallback string) (string, error) {
	if len(order) == 0 {
		return fmt.Sprintf("ORDER BY %s ASC", fallback), nil
	}

	terms := make([]string, 0, len(order))
	for _, field := range order {
		direction := "ASC"
		column := field
		if strings.HasPrefix(column, "-") {
			direction = "DESC"
			column = column[1:]
		}
		if _, ok := allowed[column]; !ok {
			return "", fmt.Errorf("cannot order by %q", column)
		}
		terms = append(terms, column+" "+direction)
	}
	return "ORDER BY " + strings.Join(terms, ", "), nil
}
