package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/repository"
)

// =============================================================================
// Users
// =============================================================================

type userRepository struct{ s *Store }

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	return r.s.write(ctx, func(d *dataset) error {
		for _, u := range d.users {
			if strings.EqualFold(u.Email, user.Email) {
				return domain.ErrUserAlreadyExists
			}
		}
		user.ID = d.nextUserID
		d.nextUserID++
		d.users[user.ID] = *user
		return nil
	})
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var (
		u  domain.User
		ok bool
	)
	r.s.read(func(d *dataset) { u, ok = d.users[id] })
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var found *domain.User
	r.s.read(func(d *dataset) {
		for _, u := range d.users {
			u := u
			if strings.EqualFold(u.Email, email) {
				found = &u
				return
			}
		}
	})
	if found == nil {
		return nil, domain.ErrUserNotFound
	}
	return found, nil
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	return r.s.write(ctx, func(d *dataset) error {
		if _, ok := d.users[user.ID]; !ok {
			return domain.ErrUserNotFound
		}
		d.users[user.ID] = *user
		return nil
	})
}

func (r *userRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.User], error) {
	var items []*domain.User
	r.s.read(func(d *dataset) {
		for _, u := range d.users {
			u := u
			items = append(items, &u)
		}
	})
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return page(items, opts), nil
}

// =============================================================================
// Categories
// =============================================================================

type categoryRepository struct{ s *Store }

func (r *categoryRepository) Create(ctx context.Context, category *domain.Category) error {
	return r.s.write(ctx, func(d *dataset) error {
		if nameTaken(d, category.Name, 0) {
			return domain.ErrCategoryAlreadyExists
		}
		category.ID = d.nextCategoryID
		d.nextCategoryID++
		d.categories[category.ID] = *category
		return nil
	})
}

func (r *categoryRepository) GetByID(ctx context.Context, id int64) (*domain.Category, error) {
	var (
		c  domain.Category
		ok bool
	)
	r.s.read(func(d *dataset) { c, ok = d.categories[id] })
	if !ok {
		return nil, domain.ErrCategoryNotFound
	}
	return &c, nil
}

func (r *categoryRepository) Update(ctx context.Context, category *domain.Category) error {
	return r.s.write(ctx, func(d *dataset) error {
		if _, ok := d.categories[category.ID]; !ok {
			return domain.ErrCategoryNotFound
		}
		if nameTaken(d, category.Name, category.ID) {
			return domain.ErrCategoryAlreadyExists
		}
		d.categories[category.ID] = *category
		return nil
	})
}

func (r *categoryRepository) Delete(ctx context.Context, id int64) error {
	return r.s.write(ctx, func(d *dataset) error {
		if _, ok := d.categories[id]; !ok {
			return domain.ErrCategoryNotFound
		}
		for _, b := range d.books {
			if b.CategoryID == id {
				return domain.ErrCategoryInUse
			}
		}
		delete(d.categories, id)
		return nil
	})
}

func (r *categoryRepository) ExistsByName(ctx context.Context, name string, excludeID int64) (bool, error) {
	var taken bool
	r.s.read(func(d *dataset) { taken = nameTaken(d, name, excludeID) })
	return taken, nil
}

func (r *categoryRepository) List(ctx context.Context) ([]*domain.Category, error) {
	var items []*domain.Category
	r.s.read(func(d *dataset) {
		for _, c := range d.categories {
			c := c
			items = append(items, &c)
		}
	})
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func nameTaken(d *dataset, name string, excludeID int64) bool {
	for _, c := range d.categories {
		if c.ID != excludeID && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// =============================================================================
// Books
// =============================================================================

type bookRepository struct{ s *Store }

func copyBook(b domain.Book) *domain.Book {
	if b.ISBN != nil {
		isbn := *b.ISBN
		b.ISBN = &isbn
	}
	return &b
}

func isbnTaken(d *dataset, isbn *string, excludeID int64) bool {
	if isbn == nil || *isbn == "" {
		return false
	}
	for _, b := range d.books {
		if b.ID != excludeID && b.ISBN != nil && *b.ISBN == *isbn {
			return true
		}
	}
	return false
}

func (r *bookRepository) Create(ctx context.Context, book *domain.Book) error {
	return r.s.write(ctx, func(d *dataset) error {
		if _, ok := d.categories[book.CategoryID]; !ok {
			return domain.ErrCategoryNotFound
		}
		if isbnTaken(d, book.ISBN, 0) {
			return domain.ErrISBNAlreadyExists
		}
		book.ID = d.nextBookID
		book.Version = 1
		d.nextBookID++
		d.books[book.ID] = *copyBook(*book)
		return nil
	})
}

func (r *bookRepository) GetByID(ctx context.Context, id int64) (*domain.Book, error) {
	var (
		b  domain.Book
		ok bool
	)
	r.s.read(func(d *dataset) { b, ok = d.books[id] })
	if !ok {
		return nil, domain.ErrBookNotFound
	}
	return copyBook(b), nil
}

// GetForUpdate is GetByID; transactions are already serialized.
func (r *bookRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Book, error) {
	return r.GetByID(ctx, id)
}

func (r *bookRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Book, error) {
	out := make(map[int64]*domain.Book, len(ids))
	r.s.read(func(d *dataset) {
		for _, id := range ids {
			if b, ok := d.books[id]; ok {
				out[id] = copyBook(b)
			}
		}
	})
	return out, nil
}

func (r *bookRepository) Update(ctx context.Context, book *domain.Book) error {
	return r.s.write(ctx, func(d *dataset) error {
		stored, ok := d.books[book.ID]
		if !ok {
			return domain.ErrBookNotFound
		}
		if stored.Version != book.Version {
			return repository.ErrStaleVersion
		}
		if _, ok := d.categories[book.CategoryID]; !ok {
			return domain.ErrCategoryNotFound
		}
		if isbnTaken(d, book.ISBN, book.ID) {
			return domain.ErrISBNAlreadyExists
		}
		book.Version++
		d.books[book.ID] = *copyBook(*book)
		return nil
	})
}

func (r *bookRepository) Delete(ctx context.Context, id int64) error {
	return r.s.write(ctx, func(d *dataset) error {
		if _, ok := d.books[id]; !ok {
			return domain.ErrBookNotFound
		}
		delete(d.books, id)
		for rid, res := range d.reservations {
			if res.BookID == id {
				delete(d.reservations, rid)
			}
		}
		return nil
	})
}

func (r *bookRepository) ExistsByISBN(ctx context.Context, isbn string, excludeID int64) (bool, error) {
	var taken bool
	r.s.read(func(d *dataset) { taken = isbnTaken(d, &isbn, excludeID) })
	return taken, nil
}

func (r *bookRepository) CountByCategory(ctx context.Context, categoryID int64) (int64, error) {
	var n int64
	r.s.read(func(d *dataset) {
		for _, b := range d.books {
			if b.CategoryID == categoryID {
				n++
			}
		}
	})
	return n, nil
}

func (r *bookRepository) List(ctx context.Context, filter repository.BookFilter, opts repository.ListOptions) (*repository.ListResult[domain.Book], error) {
	var items []*domain.Book
	r.s.read(func(d *dataset) {
		for _, b := range d.books {
			if matchesBook(b, filter) {
				items = append(items, copyBook(b))
			}
		}
	})
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return page(items, opts), nil
}

func matchesBook(b domain.Book, f repository.BookFilter) bool {
	contains := func(field, sub string) bool {
		return sub == "" || strings.Contains(strings.ToLower(field), strings.ToLower(sub))
	}
	return contains(b.Title, f.Title) &&
		contains(b.Author, f.Author) &&
		contains(b.Genre, f.Genre) &&
		contains(b.Language, f.Language) &&
		(f.CategoryID == 0 || b.CategoryID == f.CategoryID) &&
		(f.Status == "" || b.Status == f.Status)
}

// =============================================================================
// Reservations
// =============================================================================

type reservationRepository struct{ s *Store }

func copyReservation(r domain.Reservation) *domain.Reservation {
	if r.ReturnDate != nil {
		t := *r.ReturnDate
		r.ReturnDate = &t
	}
	return &r
}

func (r *reservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	return r.s.write(ctx, func(d *dataset) error {
		if _, ok := d.books[res.BookID]; !ok {
			return domain.ErrBookNotFound
		}
		if _, ok := d.users[res.UserID]; !ok {
			return domain.ErrUserNotFound
		}
		if res.Status == domain.ReservationActive && activeExists(d, res.UserID, res.BookID) {
			return domain.ErrDuplicateReservation
		}
		res.ID = d.nextReservationID
		d.nextReservationID++
		d.reservations[res.ID] = *copyReservation(*res)
		return nil
	})
}

func (r *reservationRepository) GetByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	var (
		res domain.Reservation
		ok  bool
	)
	r.s.read(func(d *dataset) { res, ok = d.reservations[id] })
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return copyReservation(res), nil
}

func (r *reservationRepository) UpdateStatus(ctx context.Context, res *domain.Reservation, from domain.ReservationStatus) error {
	return r.s.write(ctx, func(d *dataset) error {
		stored, ok := d.reservations[res.ID]
		if !ok {
			return domain.ErrReservationNotFound
		}
		if stored.Status != from {
			return repository.ErrStaleVersion
		}
		stored.Status = res.Status
		stored.ReturnDate = res.ReturnDate
		stored.UpdatedAt = res.UpdatedAt
		d.reservations[res.ID] = *copyReservation(stored)
		return nil
	})
}

func (r *reservationRepository) ExistsActive(ctx context.Context, userID, bookID int64) (bool, error) {
	var exists bool
	r.s.read(func(d *dataset) { exists = activeExists(d, userID, bookID) })
	return exists, nil
}

func activeExists(d *dataset, userID, bookID int64) bool {
	for _, res := range d.reservations {
		if res.UserID == userID && res.BookID == bookID && res.Status == domain.ReservationActive {
			return true
		}
	}
	return false
}

func (r *reservationRepository) CountActiveByBook(ctx context.Context, bookID int64) (int64, error) {
	var n int64
	r.s.read(func(d *dataset) {
		for _, res := range d.reservations {
			if res.BookID == bookID && res.Status == domain.ReservationActive {
				n++
			}
		}
	})
	return n, nil
}

func (r *reservationRepository) ListByUser(ctx context.Context, userID int64) ([]*domain.Reservation, error) {
	return r.collect(func(res domain.Reservation) bool { return res.UserID == userID }), nil
}

func (r *reservationRepository) List(ctx context.Context, filter repository.ReservationFilter, opts repository.ListOptions) (*repository.ListResult[domain.Reservation], error) {
	items := r.collect(func(res domain.Reservation) bool {
		return (filter.Status == "" || res.Status == filter.Status) &&
			(filter.UserID == 0 || res.UserID == filter.UserID) &&
			(filter.BookID == 0 || res.BookID == filter.BookID)
	})
	return page(items, opts), nil
}

func (r *reservationRepository) ListActiveDueBefore(ctx context.Context, t time.Time) ([]*domain.Reservation, error) {
	items := r.collect(func(res domain.Reservation) bool {
		return res.Status == domain.ReservationActive && res.DueDate.Before(t)
	})
	sort.Slice(items, func(i, j int) bool { return items[i].DueDate.Before(items[j].DueDate) })
	return items, nil
}

// collect returns matching reservations, newest first.
func (r *reservationRepository) collect(match func(domain.Reservation) bool) []*domain.Reservation {
	var items []*domain.Reservation
	r.s.read(func(d *dataset) {
		for _, res := range d.reservations {
			if match(res) {
				items = append(items, copyReservation(res))
			}
		}
	})
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return items
}

var (
	_ repository.UserRepository        = (*userRepository)(nil)
	_ repository.CategoryRepository    = (*categoryRepository)(nil)
	_ repository.BookRepository        = (*bookRepository)(nil)
	_ repository.ReservationRepository = (*reservationRepository)(nil)
)
