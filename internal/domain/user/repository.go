package user

import "context"

// ListOptions задаёт пагинацию для выборок пользователей.
type ListOptions struct {
	Offset int
	Limit  int
}

// DefaultListOptions возвращает параметры по умолчанию.
func DefaultListOptions() ListOptions {
	return ListOptions{Offset: 0, Limit: 100}
}

// Repository определяет операции хранилища для пользователей.
// Реализации находятся в infrastructure/persistence.
type Repository interface {
	// Create сохраняет нового пользователя и заполняет его ID.
	// Возвращает shared.ErrUserExists, если telegram_id уже занят.
	Create(ctx context.Context, u *User) error

	// GetByID возвращает пользователя по внутреннему ID.
	// Возвращает shared.ErrUserNotFound, если пользователь не найден.
	GetByID(ctx context.Context, id ID) (*User, error)

	// GetByTelegramID возвращает пользователя по Telegram ID.
	GetByTelegramID(ctx context.Context, telegramID TelegramID) (*User, error)

	// Update сохраняет профиль, опыт и уровень.
	Update(ctx context.Context, u *User) error

	// List возвращает пользователей в порядке ID.
	List(ctx context.Context, opts ListOptions) ([]*User, error)

	// Count возвращает общее количество пользователей.
	Count(ctx context.Context) (int, error)

	// AverageLevel возвращает средний уровень (0, если пользователей нет).
	AverageLevel(ctx context.Context) (float64, error)
}
