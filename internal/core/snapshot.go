package core

import "time"

// DailySnapshot is an immutable point-in-time net-worth aggregate, keyed by
// calendar date. Once written for a date it is never mutated.
type DailySnapshot struct {
	ID          string
	Date        time.Time
	NetWorth    Money
	Assets      Money
	Liabilities Money
}

// MonthlySnapshot is an immutable income/expense aggregate for one calendar
// month, keyed by year+month.
type MonthlySnapshot struct {
	ID       string
	Year     int
	Month    time.Month
	Income   Money
	Expenses Money
	Net      Money
}
