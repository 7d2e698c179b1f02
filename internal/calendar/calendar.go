// Package calendar converts start instants and minute budgets into
// deadlines under a policy's business-hours configuration.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk-core/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// schedule is the parsed, validated business-hours portion of a policy.
type schedule struct {
	loc      *time.Location
	openMin  int // minutes after midnight, wall clock
	closeMin int
	days     map[time.Weekday]bool
}

func parseSchedule(policy *domain.SLAPolicy) (*schedule, error) {
	loc, err := time.LoadLocation(policy.Timezone)
	if err != nil {
		return nil, apperrors.NewCalendarConfig("unknown timezone", map[string]any{"timezone": policy.Timezone})
	}
	openMin, err := parseClock(policy.BusinessStart)
	if err != nil {
		return nil, apperrors.NewCalendarConfig("invalid business start", map[string]any{"start": policy.BusinessStart})
	}
	closeMin, err := parseClock(policy.BusinessEnd)
	if err != nil {
		return nil, apperrors.NewCalendarConfig("invalid business end", map[string]any{"end": policy.BusinessEnd})
	}
	if closeMin <= openMin {
		return nil, apperrors.NewCalendarConfig("business end must be after start", map[string]any{
			"start": policy.BusinessStart,
			"end":   policy.BusinessEnd,
		})
	}
	if len(policy.BusinessDays) == 0 {
		return nil, apperrors.NewCalendarConfig("no business days configured", nil)
	}
	days := make(map[time.Weekday]bool, len(policy.BusinessDays))
	for _, d := range policy.BusinessDays {
		days[d] = true
	}
	return &schedule{loc: loc, openMin: openMin, closeMin: closeMin, days: days}, nil
}

// ValidateSchedule checks a policy's business-hours configuration
// without computing anything. Continuous policies always pass.
func ValidateSchedule(policy *domain.SLAPolicy) error {
	if !policy.CoversBusinessHoursOnly() {
		return nil
	}
	_, err := parseSchedule(policy)
	return err
}

// parseClock parses "HH:MM" into minutes after midnight.
func parseClock(v string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(v), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed time of day %q", v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", v)
	}
	return h*60 + m, nil
}

// wallMinutes returns the wall-clock minutes after midnight for t.
// Wall-clock math keeps the per-day budget stable across DST shifts.
func wallMinutes(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// atWallMinutes rebuilds t's day with the given wall-clock offset.
// time.Date normalizes overflow, so offsets past midnight roll forward.
func atWallMinutes(t time.Time, minutes int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, minutes, 0, 0, t.Location())
}

// nextOpening advances to the opening instant of the first business day
// strictly after t's day.
func (s *schedule) nextOpening(t time.Time) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
	for {
		day = day.AddDate(0, 0, 1)
		if s.days[day.Weekday()] {
			return atWallMinutes(day, s.openMin)
		}
	}
}

// normalize snaps t forward to the nearest business instant: the same
// instant when already inside business hours, otherwise the next opening.
func (s *schedule) normalize(t time.Time) time.Time {
	cur := t.In(s.loc)
	for !s.days[cur.Weekday()] || wallMinutes(cur) >= s.closeMin {
		cur = s.nextOpening(cur)
	}
	if wallMinutes(cur) < s.openMin {
		cur = atWallMinutes(cur, s.openMin)
	}
	return cur
}

// Deadline computes start + minutes of SLA time under the policy.
// Continuous coverage is plain duration addition; business coverage
// walks forward in business-day chunks.
func Deadline(start time.Time, minutes int, policy *domain.SLAPolicy) (time.Time, error) {
	if minutes < 0 {
		return time.Time{}, apperrors.NewCalendarConfig("negative minute budget", map[string]any{"minutes": minutes})
	}
	if !policy.CoversBusinessHoursOnly() {
		return start.Add(time.Duration(minutes) * time.Minute), nil
	}
	sched, err := parseSchedule(policy)
	if err != nil {
		return time.Time{}, err
	}

	cur := sched.normalize(start)
	remaining := minutes
	for remaining > 0 {
		avail := sched.closeMin - wallMinutes(cur)
		if avail >= remaining {
			return atWallMinutes(cur, wallMinutes(cur)+remaining), nil
		}
		remaining -= avail
		cur = sched.nextOpening(cur)
	}
	return cur, nil
}

// IsBusinessTime reports whether t falls inside the policy's business
// hours. Continuous coverage counts every instant as business time.
func IsBusinessTime(t time.Time, policy *domain.SLAPolicy) (bool, error) {
	if !policy.CoversBusinessHoursOnly() {
		return true, nil
	}
	sched, err := parseSchedule(policy)
	if err != nil {
		return false, err
	}
	local := t.In(sched.loc)
	if !sched.days[local.Weekday()] {
		return false, nil
	}
	wm := wallMinutes(local)
	return wm >= sched.openMin && wm < sched.closeMin, nil
}

// IsApproachingBreach reports whether the elapsed fraction of the window
// from createdAt to deadline has reached warningPct.
func IsApproachingBreach(createdAt, deadline, now time.Time, warningPct int) bool {
	if warningPct <= 0 {
		return true
	}
	total := deadline.Sub(createdAt)
	if total <= 0 {
		return true
	}
	elapsed := now.Sub(createdAt)
	if elapsed <= 0 {
		return false
	}
	return float64(elapsed)/float64(total)*100 >= float64(warningPct)
}
