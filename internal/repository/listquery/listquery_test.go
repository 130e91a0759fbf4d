package listquery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

func TestBooks_Filters(t *testing.T) {
	tests := []struct {
		name     string
		dialect  string
		filter   repository.BookFilter
		contains []string
		firstArg any
	}{
		{
			name:     "postgres title",
			dialect:  DialectPostgres,
			filter:   repository.BookFilter{Title: "DUNE"},
			contains: []string{`FROM "books"`, `LOWER("title") LIKE $1`, `ORDER BY "id" ASC`},
			firstArg: "%dune%",
		},
		{
			name:     "sqlite author and category",
			dialect:  DialectSQLite,
			filter:   repository.BookFilter{Author: "Le Guin", CategoryID: 3},
			contains: []string{"FROM `books`", "LOWER(`author`) LIKE ?", "`category_id` = ?"},
			firstArg: "%le guin%",
		},
		{
			name:     "wildcards are literal",
			dialect:  DialectPostgres,
			filter:   repository.BookFilter{Genre: "50%_off"},
			contains: []string{`LOWER("genre") LIKE $1`},
			firstArg: `%50\%\_off%`,
		},
		{
			name:     "status",
			dialect:  DialectPostgres,
			filter:   repository.BookFilter{Status: domain.BookStatusAvailable},
			contains: []string{`"status" = $1`},
			firstArg: "AVAILABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, count, err := New(tt.dialect).Books(tt.filter, repository.ListOptions{Limit: 10})
			require.NoError(t, err)

			for _, fragment := range tt.contains {
				assert.Contains(t, page.SQL, fragment)
			}
			require.NotEmpty(t, page.Args)
			assert.Equal(t, tt.firstArg, page.Args[0])

			assert.Contains(t, count.SQL, "COUNT(*)")
			assert.NotContains(t, count.SQL, "ORDER BY")
			assert.NotContains(t, count.SQL, "LIMIT")
			require.NotEmpty(t, count.Args)
			assert.Equal(t, tt.firstArg, count.Args[0])
		})
	}
}

func TestBooks_NoFilter(t *testing.T) {
	page, count, err := New(DialectPostgres).Books(repository.BookFilter{}, repository.ListOptions{})
	require.NoError(t, err)
	assert.NotContains(t, page.SQL, "WHERE")
	assert.Contains(t, page.SQL, "LIMIT")
	assert.NotContains(t, count.SQL, "WHERE")
}

func TestReservations(t *testing.T) {
	page, count, err := New(DialectPostgres).Reservations(
		repository.ReservationFilter{Status: domain.ReservationActive, UserID: 7},
		repository.ListOptions{Limit: 5, Offset: 10},
	)
	require.NoError(t, err)

	assert.Contains(t, page.SQL, `FROM "reservations"`)
	assert.Contains(t, page.SQL, `"status" = $1`)
	assert.Contains(t, page.SQL, `"user_id" = $2`)
	assert.Contains(t, page.SQL, `ORDER BY "id" DESC`)
	assert.Contains(t, page.SQL, "OFFSET")

	assert.Contains(t, count.SQL, "COUNT(*)")
	assert.Len(t, count.Args, 2)
}
