package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-library/internal/domain"
	"github.com/prn-tf/alexander-library/internal/lock"
	"github.com/prn-tf/alexander-library/internal/metrics"
	"github.com/prn-tf/alexander-library/internal/repository"
	"github.com/prn-tf/alexander-library/internal/repository/memory"
	"github.com/prn-tf/alexander-library/internal/repository/sqlite"
)

var testNow = time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu        sync.Mutex
	created   []*domain.Reservation
	reminders []*domain.Reservation
}

func (n *recordingNotifier) NotifyReservationCreated(_ context.Context, _ *domain.User, _ *domain.Book, r *domain.Reservation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, r)
}

func (n *recordingNotifier) NotifyDueReminder(_ context.Context, _ *domain.User, _ *domain.Book, r *domain.Reservation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reminders = append(n.reminders, r)
}

type fixture struct {
	repos        *repository.Repositories
	locker       lock.Locker
	coordinator  *InventoryCoordinator
	reservations *ReservationService
	catalog      *CatalogService
	categories   *CategoryService
	users        *UserService
	notifier     *recordingNotifier

	librarian *domain.User
	alice     *domain.User
	bob       *domain.User
	category  *domain.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	locker := lock.NewMemoryLocker()
	t.Cleanup(locker.Stop)
	return newFixtureWith(t, memory.NewStore().Repositories(), locker)
}

// newSQLiteFixture runs the services on a file-backed SQLite database
// without a process lock, the way separate instances share one database.
func newSQLiteFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(filepath.Join(t.TempDir(), "library.db")), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))

	return newFixtureWith(t, db.Repositories(), lock.NewNoOpLocker())
}

func newFixtureWith(t *testing.T, repos *repository.Repositories, locker lock.Locker) *fixture {
	t.Helper()

	logger := zerolog.Nop()
	cfg := DefaultCoordinatorConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.LockRetryDelay = time.Millisecond
	cfg.LockRetries = 500

	coordinator := NewInventoryCoordinator(repos, locker, metrics.NewMetrics(), cfg, logger)
	coordinator.SetClock(func() time.Time { return testNow })

	notifier := &recordingNotifier{}
	reservations := NewReservationService(coordinator, repos, notifier, logger)
	reservations.SetClock(func() time.Time { return testNow })

	categories := NewCategoryService(repos, nil, time.Minute, logger)

	f := &fixture{
		repos:        repos,
		locker:       locker,
		coordinator:  coordinator,
		reservations: reservations,
		catalog:      NewCatalogService(coordinator, repos, categories, logger),
		categories:   categories,
		users:        NewUserService(repos.User, logger),
		notifier:     notifier,
	}

	ctx := context.Background()
	f.librarian = f.createUser(t, "librarian@example.com", domain.RoleLibrarian)
	f.alice = f.createUser(t, "alice@example.com", domain.RoleUser)
	f.bob = f.createUser(t, "bob@example.com", domain.RoleUser)

	f.category = domain.NewCategory("Science Fiction", "")
	require.NoError(t, repos.Category.Create(ctx, f.category))
	return f
}

func (f *fixture) createUser(t *testing.T, email string, role domain.Role) *domain.User {
	t.Helper()
	u := domain.NewUser(email, "", role)
	require.NoError(t, f.repos.User.Create(context.Background(), u))
	return u
}

func (f *fixture) addBook(t *testing.T, copies int) *domain.Book {
	t.Helper()
	b, err := domain.NewBook("Dune", "Frank Herbert", f.category.ID, copies)
	require.NoError(t, err)
	require.NoError(t, f.repos.Book.Create(context.Background(), b))
	return b
}

func (f *fixture) book(t *testing.T, id int64) *domain.Book {
	t.Helper()
	b, err := f.repos.Book.GetByID(context.Background(), id)
	require.NoError(t, err)
	return b
}

// requireConsistent checks the copy-count invariant of a stored book.
func (f *fixture) requireConsistent(t *testing.T, id int64) {
	t.Helper()
	audit, err := f.coordinator.Audit(context.Background(), id)
	require.NoError(t, err)
	require.Truef(t, audit.Consistent(), "inconsistent book: %+v", *audit)
}
