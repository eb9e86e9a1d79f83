package handlers

// Ограничения запросов
const (
	// MaxBodyBytes - максимальный размер тела запроса
	MaxBodyBytes = 1 << 20

	// DateFormat - формат параметра date
	DateFormat = "2006-01-02"
)
