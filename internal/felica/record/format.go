package record

import (
	"fmt"
	"time"
)

var weekdays = [...]string{
	time.Sunday:    "日",
	time.Monday:    "月",
	time.Tuesday:   "火",
	time.Wednesday: "水",
	time.Thursday:  "木",
	time.Friday:    "金",
	time.Saturday:  "土",
}

// FormatDate renders a date the way the card history screen shows it,
// e.g. 2023年05月10日(水).
func FormatDate(d Date) string {
	return fmt.Sprintf("%04d年%02d月%02d日(%s)", d.Year, int(d.Month), d.Day, weekdays[d.Weekday()])
}
