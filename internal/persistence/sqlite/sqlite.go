// Package sqlite implements the persistence repositories on SQLite through
// the pure Go modernc.org/sqlite driver. Instants are stored as fixed width
// UTC text so they compare correctly in SQL.
package sqlite

import "github.com/example/conference-companion/internal/persistence"

var (
	_ persistence.UserRepository           = (*UserRepository)(nil)
	_ persistence.PassRepository           = (*PassRepository)(nil)
	_ persistence.SpeakerRepository        = (*SpeakerRepository)(nil)
	_ persistence.AgendaRepository         = (*AgendaRepository)(nil)
	_ persistence.MeetingRequestRepository = (*MeetingRequestRepository)(nil)
	_ persistence.MeetingRepository        = (*MeetingRepository)(nil)
	_ persistence.BlockRepository          = (*BlockRepository)(nil)
)
