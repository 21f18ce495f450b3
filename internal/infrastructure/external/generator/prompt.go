package generator

import (
	"fmt"
	"strings"

	"github.com/questforge/questbot/internal/domain/quest"
)

const systemPrompt = `Ты - Система из RPG-мира, которая выдаёт игроку квесты на самосовершенствование.
Квесты реальные и выполнимые: спорт, учёба, здоровье, порядок, общение, творчество.
Пиши по-русски, коротко и в духе игры.
Отвечай ТОЛЬКО JSON-объектом без пояснений:
{"title": "...", "description": "...", "tasks": ["...", "..."], "difficulty": "..."}`

type promptShape struct {
	period       string
	minTasks     int
	maxTasks     int
	difficulties []quest.Difficulty
}

func shapeFor(t quest.Type) promptShape {
	if t == quest.TypeWeekly {
		return promptShape{
			period:       "недельный квест на 7 дней",
			minTasks:     3,
			maxTasks:     5,
			difficulties: quest.AllowedDifficulties(t),
		}
	}
	return promptShape{
		period:       "ежедневный квест на сегодня",
		minTasks:     3,
		maxTasks:     5,
		difficulties: quest.AllowedDifficulties(t),
	}
}

// buildPrompt returns the system and user messages for a request.
func buildPrompt(req quest.GenerateRequest) (string, string) {
	shape := shapeFor(req.Type)

	names := make([]string, len(shape.difficulties))
	for i, d := range shape.difficulties {
		names[i] = string(d)
	}

	name := strings.TrimSpace(req.UserName)
	if name == "" {
		name = "Игрок"
	}
	level := req.Level
	if level < 1 {
		level = 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Создай %s для игрока %s (уровень %d).\n", shape.period, name, level)
	fmt.Fprintf(&b, "Заданий: от %d до %d, каждое - одно конкретное действие.\n", shape.minTasks, shape.maxTasks)
	fmt.Fprintf(&b, "Поле difficulty: одно из %s.", strings.Join(names, ", "))
	if level >= 10 {
		b.WriteString("\nИгрок опытный, задания могут быть посложнее.")
	}

	return systemPrompt, b.String()
}
