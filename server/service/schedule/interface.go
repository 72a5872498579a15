package schedule

import (
	"context"

	"github.com/hrygo/remindbot/plugin/nltime"
	"github.com/hrygo/remindbot/store"
)

// Service defines the core business logic interface for schedule management.
// Every decision about "today" is taken in the service's civil timezone.
type Service interface {
	// Today returns the current civil date.
	Today() nltime.Date

	// CreateFromText parses text and stores the resulting entry for owner.
	// It returns nltime.ErrNoMatch when the text is not a schedule expression.
	CreateFromText(ctx context.Context, owner, text string) (*store.Schedule, error)

	// FindInPeriod returns owner's ACTIVE entries inside the resolved period.
	FindInPeriod(ctx context.Context, owner string, period nltime.Period) (nltime.Range, []*store.Schedule, error)

	// FindAllInRange returns every owner's ACTIVE entries inside r.
	FindAllInRange(ctx context.Context, r nltime.Range) ([]*store.Schedule, error)

	// DeleteByID soft-deletes owner's entry with the given ID.
	DeleteByID(ctx context.Context, owner, id string) (*store.Schedule, error)

	// DeleteByKeyword soft-deletes the single upcoming entry whose content
	// contains keyword. When several entries match nothing is deleted and
	// the candidates are returned with ErrAmbiguous.
	DeleteByKeyword(ctx context.Context, owner, keyword string) (*store.Schedule, []*store.Schedule, error)
}
