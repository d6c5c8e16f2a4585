package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/erpbridge/platform/pkg/integration"
	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

var (
	everyPattern = regexp.MustCompile(`^every\s+(\d+)\s+(minute|minutes|hour|hours|day|days)$`)
	dailyPattern = regexp.MustCompile(`^daily\s+at\s+(\d{1,2}):(\d{2})$`)
)

// ParseInterval turns a configuration's execution_interval into a cron
// schedule. Three forms are accepted: a standard five-field cron expression,
// "every N minutes|hours|days", and "daily at HH:MM". The phrase forms are
// case-insensitive.
func ParseInterval(expr string) (cron.Schedule, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty expression", integration.ErrInvalidInterval)
	}
	lowered := strings.ToLower(trimmed)

	if m := everyPattern.FindStringSubmatch(lowered); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: %q", integration.ErrInvalidInterval, expr)
		}
		var unit time.Duration
		switch {
		case strings.HasPrefix(m[2], "minute"):
			unit = time.Minute
		case strings.HasPrefix(m[2], "hour"):
			unit = time.Hour
		default:
			unit = 24 * time.Hour
		}
		return cron.Every(time.Duration(n) * unit), nil
	}

	if m := dailyPattern.FindStringSubmatch(lowered); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return nil, fmt.Errorf("%w: %q", integration.ErrInvalidInterval, expr)
		}
		schedule, err := cronParser.Parse(fmt.Sprintf("%d %d * * *", minute, hour))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", integration.ErrInvalidInterval, expr)
		}
		return schedule, nil
	}

	schedule, err := cronParser.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", integration.ErrInvalidInterval, expr)
	}
	return schedule, nil
}
