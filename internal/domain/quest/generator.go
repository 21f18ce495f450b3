package quest

import (
	"context"
	"fmt"
	"strings"

	"github.com/questforge/questbot/internal/domain/shared"
)

// GenerateRequest - входные данные для генерации квеста.
type GenerateRequest struct {
	UserName string
	Type     Type
	Level    int
}

// Generated - содержимое квеста, полученное от генератора.
type Generated struct {
	Title       string
	Description string
	Tasks       []string
	Difficulty  Difficulty
}

// Generator - внешний источник содержимого квестов.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Generated, error)
}

// Validate проверяет ответ генератора. Любое нарушение - ошибка генерации.
func (g *Generated) Validate(t Type) error {
	if g == nil {
		return shared.Generation("Validate", "empty payload", nil)
	}
	if strings.TrimSpace(g.Title) == "" {
		return shared.Generation("Validate", "missing title", nil)
	}

	nonEmpty := 0
	for _, task := range g.Tasks {
		if strings.TrimSpace(task) != "" {
			nonEmpty++
		}
	}
	if nonEmpty == 0 {
		return shared.Generation("Validate", "empty task list", nil)
	}

	if !g.Difficulty.IsAllowedFor(t) {
		return shared.Generation("Validate",
			fmt.Sprintf("difficulty %q is not allowed for %s quests", g.Difficulty, t), nil)
	}
	return nil
}
