package intake

import "github.com/robfig/cron/v3"

// newCronParser accepts the standard 5-field format, minute through
// day-of-week.
func newCronParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
}
