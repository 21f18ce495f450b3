package quest

import (
	"fmt"
	"time"

	"github.com/questforge/questbot/internal/domain/shared"
)

// Policy задаёт время жизни квестов для проверки права на новый квест.
type Policy struct {
	DailyTTL  time.Duration
	WeeklyTTL time.Duration
}

// DefaultPolicy возвращает стандартные сроки: сутки и неделя.
func DefaultPolicy() Policy {
	return Policy{
		DailyTTL:  24 * time.Hour,
		WeeklyTTL: 7 * 24 * time.Hour,
	}
}

// TTL возвращает время жизни для типа квеста.
func (p Policy) TTL(t Type) time.Duration {
	if t == TypeWeekly {
		return p.WeeklyTTL
	}
	return p.DailyTTL
}

// Validate проверяет корректность политики.
func (p Policy) Validate() error {
	if p.DailyTTL <= 0 || p.WeeklyTTL <= 0 {
		return shared.InvalidArgument("quest", "Policy", fmt.Sprintf("ttl must be positive (daily=%s, weekly=%s)", p.DailyTTL, p.WeeklyTTL))
	}
	return nil
}

// Decision - результат проверки права на новый квест.
type Decision struct {
	Allowed   bool
	Type      Type
	ExpiresAt time.Time     // истечение текущего квеста, нулевое если его нет
	Remaining time.Duration // сколько осталось ждать
	Hours     int
	Minutes   int
}

// Gate решает, можно ли выдать пользователю новый квест данного типа.
// Просроченный pending-квест не трогается - он просто перестаёт блокировать выдачу.
type Gate struct {
	policy Policy
}

// NewGate создаёт гейт с заданной политикой.
func NewGate(policy Policy) *Gate {
	return &Gate{policy: policy}
}

// Policy возвращает политику гейта.
func (g *Gate) Policy() Policy {
	return g.policy
}

// Decide принимает решение по последнему pending-квесту того же типа.
// latest == nil означает, что активного квеста нет.
func (g *Gate) Decide(t Type, latest *Quest, now time.Time) Decision {
	d := Decision{Type: t}
	if latest == nil || latest.Status != StatusPending {
		d.Allowed = true
		return d
	}

	d.ExpiresAt = latest.ExpiresAt(g.policy.TTL(t))
	if !now.Before(d.ExpiresAt) {
		d.Allowed = true
		return d
	}

	d.Remaining = d.ExpiresAt.Sub(now)
	d.Hours = int(d.Remaining / time.Hour)
	d.Minutes = int((d.Remaining % time.Hour) / time.Minute)
	return d
}

// IsExpired проверяет, истёк ли срок pending-квеста.
func (g *Gate) IsExpired(q *Quest, now time.Time) bool {
	return q.Status == StatusPending && !now.Before(q.ExpiresAt(g.policy.TTL(q.Type)))
}
