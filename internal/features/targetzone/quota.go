package targetzone

import (
	"sync"
)

// QuotaStore учёт дневных превью.
type QuotaStore interface {
	// Consume списывает одно превью пользователя за день day.
	// Возвращает остаток и false, если лимит уже исчерпан (тогда ничего не списывается).
	Consume(userID, day string, limit int) (remaining int, ok bool)
	// Purge удаляет счётчики дней раньше day.
	Purge(day string) int
}

// MemoryQuota квота в памяти процесса. Ключ: пользователь и день.
type MemoryQuota struct {
	mu   sync.Mutex
	used map[string]map[string]int // day -> userID -> count
}

func NewMemoryQuota() *MemoryQuota {
	return &MemoryQuota{used: make(map[string]map[string]int)}
}

func (q *MemoryQuota) Consume(userID, day string, limit int) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	byUser := q.used[day]
	if byUser == nil {
		byUser = make(map[string]int)
		q.used[day] = byUser
	}
	if byUser[userID] >= limit {
		return 0, false
	}
	byUser[userID]++
	return limit - byUser[userID], true
}

// Purge вызывается планировщиком раз в сутки. Ключи дней в формате
// 2006-01-02 сравниваются как строки.
func (q *MemoryQuota) Purge(day string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for d := range q.used {
		if d < day {
			delete(q.used, d)
			removed++
		}
	}
	return removed
}
