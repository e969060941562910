package logstore

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mistware/files/internal/logging"
	"github.com/mistware/files/internal/metrics"
	"github.com/mistware/files/internal/storage"
)

// DefaultRetentionDays is how many days of logs are kept.
const DefaultRetentionDays = 60

// Policy decides which log objects have expired.
type Policy struct {
	// Days is the retention window.
	Days int
	// Calendar selects exact calendar-day ages. When false the legacy
	// arithmetic is used: day-of-year plus 366 per year of difference. It
	// counts every year as 366 days, so across a non-leap year end an object
	// can expire a day early.
	Calendar bool
}

// Expired reports whether an object stamped with date is outside the
// window as of now.
func (p Policy) Expired(date, now time.Time) bool {
	days := p.Days
	if days <= 0 {
		days = DefaultRetentionDays
	}
	if p.Calendar {
		d := civilDate(date)
		today := civilDate(now)
		age := int(today.Sub(d).Hours() / 24)
		return age > days
	}
	stamped := date.YearDay() + 366*(date.Year()-now.Year()+1)
	today := now.YearDay() + 366
	return stamped < today-days
}

func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StampDate extracts the YYYYMMDD stamp that follows stem+"-" in name.
func StampDate(name, stem string) (time.Time, bool) {
	prefix := stem + "-"
	if !strings.HasPrefix(name, prefix) {
		return time.Time{}, false
	}
	rest := name[len(prefix):]
	if len(rest) < len(stampLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(stampLayout, rest[:len(stampLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Sweeper deletes expired log objects from the writer's directory.
type Sweeper struct {
	backend storage.Backend
	dir     string
	stem    string
	policy  Policy
	now     func() time.Time
}

// NewSweeper returns a Sweeper for the objects written by w.
func NewSweeper(w *Writer, policy Policy) *Sweeper {
	return &Sweeper{
		backend: w.backend,
		dir:     w.dir,
		stem:    w.stem,
		policy:  policy,
		now:     time.Now,
	}
}

// Sweep deletes every expired log object and returns how many it removed.
// Objects whose names carry no parseable stamp are left alone.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	sess := storage.NewSession(s.backend)
	if err := sess.ChangeDirectory(ctx, s.dir); err != nil {
		return 0, err
	}
	entries, err := sess.FileList(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	deleted := 0
	for _, e := range entries {
		date, ok := StampDate(e.Name, s.stem)
		if !ok || !s.policy.Expired(date, now) {
			continue
		}
		if err := sess.FileDelete(ctx, e.Name); err != nil {
			return deleted, err
		}
		deleted++
		metrics.RecordRetentionDelete()
		logging.Debug("expired log deleted", zap.String("name", e.Name))
	}
	return deleted, nil
}
