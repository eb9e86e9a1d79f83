package service

import "time"

const afterHoursCutoff = 19

// dayBounds возвращает [начало дня, начало следующего дня) для t в зоне loc
func dayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// isAfterHours - после 19:00 нельзя бронировать слоты на сегодня
func isAfterHours(now, slotStart time.Time, loc *time.Location) bool {
	return now.In(loc).Hour() >= afterHoursCutoff && sameDay(now, slotStart, loc)
}

// ParseDate разбирает дату YYYY-MM-DD в зоне loc
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, value, loc)
}
