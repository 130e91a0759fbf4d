// Package listquery builds the filtered, paginated listing queries shared by
// the SQL backends. Each backend picks its goqu dialect; the statements are
// prepared so arguments are passed separately from the SQL text.
package listquery

import (
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/prn-tf/alexander-library/internal/repository"
)

// Dialects understood by New.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

// Table and column names.
const (
	tableBooks        = "books"
	tableReservations = "reservations"

	colID              = "id"
	colTitle           = "title"
	colAuthor          = "author"
	colISBN            = "isbn"
	colCategoryID      = "category_id"
	colTotalCopies     = "total_copies"
	colAvailableCopies = "available_copies"
	colStatus          = "status"
	colGenre           = "genre"
	colLanguage        = "language"
	colDescription     = "description"
	colImageURL        = "image_url"
	colVersion         = "version"
	colCreatedAt       = "created_at"
	colUpdatedAt       = "updated_at"

	colUserID          = "user_id"
	colBookID          = "book_id"
	colReservationDate = "reservation_date"
	colDueDate         = "due_date"
	colReturnDate      = "return_date"
)

// BookColumns is the select list of a book row, in scan order.
var BookColumns = []any{
	colID, colTitle, colAuthor, colISBN, colCategoryID, colTotalCopies,
	colAvailableCopies, colStatus, colGenre, colLanguage, colDescription,
	colImageURL, colVersion, colCreatedAt, colUpdatedAt,
}

// ReservationColumns is the select list of a reservation row, in scan order.
var ReservationColumns = []any{
	colID, colUserID, colBookID, colReservationDate, colDueDate,
	colReturnDate, colStatus, colCreatedAt, colUpdatedAt,
}

// Query is a rendered statement and its arguments.
type Query struct {
	SQL  string
	Args []any
}

// Builder renders listing queries for one dialect.
type Builder struct {
	dialect goqu.DialectWrapper
}

// New returns a Builder for dialect.
func New(dialect string) Builder {
	return Builder{dialect: goqu.Dialect(dialect)}
}

// =============================================================================
// Books
// =============================================================================

// Books returns the page query and the matching count query for a book listing.
// Rows are ordered by id.
func (b Builder) Books(filter repository.BookFilter, opts repository.ListOptions) (page Query, count Query, err error) {
	opts = opts.Normalize()
	where := bookConditions(filter)

	page, err = render(b.dialect.From(tableBooks).
		Prepared(true).
		Select(BookColumns...).
		Where(where...).
		Order(goqu.I(colID).Asc()).
		Limit(uint(opts.Limit)).
		Offset(uint(opts.Offset)))
	if err != nil {
		return Query{}, Query{}, err
	}

	count, err = render(b.dialect.From(tableBooks).
		Prepared(true).
		Select(goqu.COUNT(goqu.Star())).
		Where(where...))
	if err != nil {
		return Query{}, Query{}, err
	}
	return page, count, nil
}

func bookConditions(f repository.BookFilter) []exp.Expression {
	var where []exp.Expression
	for _, text := range []struct{ col, value string }{
		{colTitle, f.Title},
		{colAuthor, f.Author},
		{colGenre, f.Genre},
		{colLanguage, f.Language},
	} {
		if text.value != "" {
			where = append(where, containsFold(text.col, text.value))
		}
	}
	if f.CategoryID != 0 {
		where = append(where, goqu.C(colCategoryID).Eq(f.CategoryID))
	}
	if f.Status != "" {
		where = append(where, goqu.C(colStatus).Eq(string(f.Status)))
	}
	return where
}

// containsFold matches col against a case-insensitive substring. LIKE
// wildcards in value are matched literally.
func containsFold(col, value string) exp.Expression {
	pattern := "%" + escapeLike(strings.ToLower(value)) + "%"
	return goqu.L(`LOWER(?) LIKE ? ESCAPE '\'`, goqu.C(col), pattern)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// =============================================================================
// Reservations
// =============================================================================

// Reservations returns the page query and the matching count query for a
// reservation listing. Rows are ordered newest first.
func (b Builder) Reservations(filter repository.ReservationFilter, opts repository.ListOptions) (page Query, count Query, err error) {
	opts = opts.Normalize()
	where := reservationConditions(filter)

	page, err = render(b.dialect.From(tableReservations).
		Prepared(true).
		Select(ReservationColumns...).
		Where(where...).
		Order(goqu.I(colID).Desc()).
		Limit(uint(opts.Limit)).
		Offset(uint(opts.Offset)))
	if err != nil {
		return Query{}, Query{}, err
	}

	count, err = render(b.dialect.From(tableReservations).
		Prepared(true).
		Select(goqu.COUNT(goqu.Star())).
		Where(where...))
	if err != nil {
		return Query{}, Query{}, err
	}
	return page, count, nil
}

func reservationConditions(f repository.ReservationFilter) []exp.Expression {
	var where []exp.Expression
	if f.Status != "" {
		where = append(where, goqu.C(colStatus).Eq(string(f.Status)))
	}
	if f.UserID != 0 {
		where = append(where, goqu.C(colUserID).Eq(f.UserID))
	}
	if f.BookID != 0 {
		where = append(where, goqu.C(colBookID).Eq(f.BookID))
	}
	return where
}

func render(ds *goqu.SelectDataset) (Query, error) {
	sql, args, err := ds.ToSQL()
	if err != nil {
		return Query{}, fmt.Errorf("failed to build list query: %w", err)
	}
	return Query{SQL: sql, Args: args}, nil
}
