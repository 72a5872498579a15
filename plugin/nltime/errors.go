package nltime

import "github.com/pkg/errors"

var (
	// ErrNoMatch is returned when the text is not a schedule expression:
	// no grammar rule matched, or the content left after the date/time phrase is empty.
	ErrNoMatch = errors.New("no schedule expression matched")

	// ErrUnknownPeriod is returned by Resolve and ParsePeriod for keywords outside the known set.
	ErrUnknownPeriod = errors.New("unknown period")
)
