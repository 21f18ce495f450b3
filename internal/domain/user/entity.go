// Package user содержит доменную модель игрока: идентификаторы Telegram,
// накопленный опыт и уровень. Пакет не имеет внешних зависимостей.
package user

import (
	"strings"
	"time"

	"github.com/questforge/questbot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// ID - внутренний идентификатор пользователя в хранилище.
type ID int64

// TelegramID представляет уникальный идентификатор пользователя Telegram.
type TelegramID int64

// IsValid проверяет, что TelegramID положительный.
func (t TelegramID) IsValid() bool {
	return t > 0
}

// LevelCurve переводит накопленный опыт в уровень.
// Реализуется калькулятором уровней (пакет leveling).
type LevelCurve interface {
	LevelFor(experience int) int
}

// ══════════════════════════════════════════════════════════════════════════════
// USER
// ══════════════════════════════════════════════════════════════════════════════

// User - игрок, получающий квесты.
// Level всегда равен значению, которое кривая уровней выводит из Experience.
type User struct {
	ID         ID
	TelegramID TelegramID
	Username   string // может быть пустым
	FirstName  string
	Level      int
	Experience int
	CreatedAt  time.Time
}

// NewUser создаёт нового пользователя с нулевым опытом и первым уровнем.
func NewUser(telegramID TelegramID, username, firstName string, now time.Time) (*User, error) {
	if !telegramID.IsValid() {
		return nil, shared.InvalidArgument("user", "New", "invalid telegram id")
	}

	return &User{
		TelegramID: telegramID,
		Username:   strings.TrimPrefix(strings.TrimSpace(username), "@"),
		FirstName:  strings.TrimSpace(firstName),
		Level:      1,
		Experience: 0,
		CreatedAt:  now.UTC(),
	}, nil
}

// DisplayName возвращает имя для обращения к пользователю.
func (u *User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return u.Username
	}
	return "Герой"
}

// LevelChange описывает изменение опыта и уровня после начисления.
type LevelChange struct {
	ExpBefore   int
	ExpAfter    int
	LevelBefore int
	LevelAfter  int
}

// LeveledUp возвращает true, если уровень вырос.
func (c LevelChange) LeveledUp() bool {
	return c.LevelAfter > c.LevelBefore
}

// Gained возвращает количество начисленного опыта.
func (c LevelChange) Gained() int {
	return c.ExpAfter - c.ExpBefore
}

// AddExperience начисляет опыт и пересчитывает уровень.
// Опыт никогда не уменьшается, поэтому отрицательное значение - ошибка.
func (u *User) AddExperience(amount int, curve LevelCurve) (LevelChange, error) {
	if amount < 0 {
		return LevelChange{}, shared.InvalidArgument("user", "AddExperience", "experience cannot decrease")
	}

	change := LevelChange{
		ExpBefore:   u.Experience,
		LevelBefore: u.Level,
	}

	u.Experience += amount
	u.Level = curve.LevelFor(u.Experience)

	change.ExpAfter = u.Experience
	change.LevelAfter = u.Level
	return change, nil
}

// UpdateProfile обновляет данные профиля из Telegram.
// Возвращает true, если что-то изменилось.
func (u *User) UpdateProfile(username, firstName string) bool {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	firstName = strings.TrimSpace(firstName)

	changed := false
	if username != u.Username {
		u.Username = username
		changed = true
	}
	if firstName != "" && firstName != u.FirstName {
		u.FirstName = firstName
		changed = true
	}
	return changed
}
