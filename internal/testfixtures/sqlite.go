package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/conference-companion/internal/persistence/sqlite"
)

// SQLiteHarness bundles the repositories of a migrated temporary database.
type SQLiteHarness struct {
	Pool            *sqlite.ConnectionPool
	Users           *sqlite.UserRepository
	Passes          *sqlite.PassRepository
	Speakers        *sqlite.SpeakerRepository
	Agenda          *sqlite.AgendaRepository
	MeetingRequests *sqlite.MeetingRequestRepository
	Meetings        *sqlite.MeetingRepository
	Blocks          *sqlite.BlockRepository
}

// NewSQLiteHarness opens and migrates a database under tb.TempDir. It is
// closed when the test ends.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "companion.db")
	pool, err := sqlite.Open(context.Background(), sqlite.TestConfig(path), nil)
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	tb.Cleanup(func() { _ = pool.Close() })

	return &SQLiteHarness{
		Pool:            pool,
		Users:           sqlite.NewUserRepository(pool),
		Passes:          sqlite.NewPassRepository(pool),
		Speakers:        sqlite.NewSpeakerRepository(pool),
		Agenda:          sqlite.NewAgendaRepository(pool),
		MeetingRequests: sqlite.NewMeetingRequestRepository(pool),
		Meetings:        sqlite.NewMeetingRepository(pool),
		Blocks:          sqlite.NewBlockRepository(pool),
	}
}
