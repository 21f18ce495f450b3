package presenter

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/questforge/questbot/internal/application/command"
	"github.com/questforge/questbot/internal/application/query"
	"github.com/questforge/questbot/internal/domain/chat"
	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATIC TEXTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// ParseModeHTML is used for every formatted message.
	ParseModeHTML = "HTML"

	NoActiveQuests = "📭 У тебя пока нет активных квестов.\n\n" +
		"Используй /generate_daily или /generate_weekly для создания квеста."

	GenerationFailed = "😔 Не удалось сгенерировать квест. Попробуй ещё раз через пару минут."

	AdminDenied = "❌ У вас нет прав для просмотра статистики"

	GenericError = "😔 Произошла ошибка. Попробуй позже."

	TooFast = "⏳ Слишком быстро! Подожди немного."

	UnknownCommand = "🤔 Не знаю такой команды. Используй /help чтобы увидеть список."

	QuestNotFound = "Квест не найден"

	QuestClosed = "Этот квест уже провален"
)

const separator = "━━━━━━━━━━━━━━━"

// Start greets the user.
func Start(firstName string) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "герой"
	}
	return fmt.Sprintf("Привет, %s!\n\n"+
		"Я RPG Quest Bot - твой личный квестодатель.\n"+
		"Используй /help чтобы узнать что я умею.", html.EscapeString(name))
}

// Help lists the commands. dailyAt and weeklyAt describe the broadcast schedule.
func Help(dailyAt, weeklyAt string) string {
	var b strings.Builder
	b.WriteString("📋 Доступные команды:\n\n")
	b.WriteString("🏠 Основные:\n")
	b.WriteString("/start - Начать работу с ботом\n")
	b.WriteString("/help - Показать это сообщение\n")
	b.WriteString("/profile - Уровень и прогресс\n")
	b.WriteString("/history - Последние сообщения\n\n")
	b.WriteString("⚔️ Квесты:\n")
	b.WriteString("/my_quests - Мои активные квесты\n")
	b.WriteString("/generate_daily - Получить дейли квест\n")
	b.WriteString("/generate_weekly - Получить недельный квест\n\n")
	if dailyAt != "" || weeklyAt != "" {
		b.WriteString("🤖 Автоматика:\n")
		b.WriteString("Бот автоматически создает квесты:\n")
		if dailyAt != "" {
			fmt.Fprintf(&b, "  • Ежедневные: %s\n", dailyAt)
		}
		if weeklyAt != "" {
			fmt.Fprintf(&b, "  • Недельные: %s\n", weeklyAt)
		}
		b.WriteString("\n")
	}
	b.WriteString("💪 Доказывай Системе свою силу!")
	return b.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// QUEST CARDS
// ══════════════════════════════════════════════════════════════════════════════

// DifficultyEmoji maps a difficulty to its marker.
func DifficultyEmoji(d quest.Difficulty) string {
	switch d {
	case quest.DifficultyEasy:
		return "🟢"
	case quest.DifficultyMedium:
		return "🟡"
	case quest.DifficultyHard:
		return "🔴"
	default:
		return "⚪"
	}
}

func typeLabel(t quest.Type) string {
	if t == quest.TypeWeekly {
		return "недельный квест"
	}
	return "ежедневный квест"
}

// Generating is shown while the generator works.
func Generating(t quest.Type) string {
	return "⏳ Генерирую " + typeLabel(t) + "..."
}

// NewQuestCard announces a freshly issued quest.
func NewQuestCard(q quest.Snapshot) string {
	var b strings.Builder

	if q.Type == quest.TypeWeekly {
		b.WriteString("🏆 <b>НОВЫЙ НЕДЕЛЬНЫЙ КВЕСТ</b> 🏆\n\n")
	} else {
		b.WriteString("⚔️ <b>НОВЫЙ ЕЖЕДНЕВНЫЙ КВЕСТ</b> ⚔️\n\n")
	}

	fmt.Fprintf(&b, "%s <b>%s</b>\n\n", DifficultyEmoji(q.Difficulty), html.EscapeString(q.Title))
	if q.Description != "" {
		fmt.Fprintf(&b, "📜 %s\n\n", html.EscapeString(q.Description))
	}

	if q.Type == quest.TypeWeekly {
		b.WriteString("📋 <b>Задания на неделю:</b>\n")
		for _, t := range q.Tasks {
			fmt.Fprintf(&b, "  %d. %s\n", t.Index+1, html.EscapeString(t.Text))
		}
	} else {
		b.WriteString("📋 <b>Задания:</b>\n")
		for _, t := range q.Tasks {
			fmt.Fprintf(&b, "  • %s\n", html.EscapeString(t.Text))
		}
	}

	fmt.Fprintf(&b, "\n💪 Сложность: %s\n", strings.ToUpper(string(q.Difficulty)))
	if q.Type == quest.TypeWeekly {
		b.WriteString("\nУ тебя 7 дней чтобы доказать свою силу!\n")
	}
	b.WriteString("\nОтмечай выполненные задания кнопками ниже 👇")

	return b.String()
}

// QuestCard shows a quest with its progress. Used in /my_quests and after toggles.
func QuestCard(q quest.Snapshot) string {
	var b strings.Builder

	label := "⚔️ ЕЖЕДНЕВНЫЙ"
	if q.Type == quest.TypeWeekly {
		label = "🏆 НЕДЕЛЬНЫЙ"
	}
	fmt.Fprintf(&b, "%s %s\n", label, DifficultyEmoji(q.Difficulty))
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(q.Title))
	if q.Description != "" {
		fmt.Fprintf(&b, "%s\n", html.EscapeString(q.Description))
	}

	b.WriteString("\n<b>Задания:</b>\n")
	for _, t := range q.Tasks {
		mark := "⬜"
		if t.Done {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s %d. %s\n", mark, t.Index+1, html.EscapeString(t.Text))
	}

	fmt.Fprintf(&b, "\nПрогресс: %s %d/%d", ProgressBar(q.Done, q.Total, 10), q.Done, q.Total)

	switch q.Status {
	case quest.StatusCompleted:
		b.WriteString("\n\n🎉 <b>Квест выполнен!</b>")
	case quest.StatusFailed:
		b.WriteString("\n\n💀 Квест провален")
	}

	return b.String()
}

// QuestListHeader opens the /my_quests output.
func QuestListHeader(count int) string {
	return fmt.Sprintf("📋 <b>Твои активные квесты:</b> %d\n%s", count, separator)
}

// GateDenied explains why a new quest cannot be issued yet.
func GateDenied(d quest.Decision) string {
	return fmt.Sprintf("⏳ У тебя уже есть активный %s!\n\n"+
		"Новый квест будет доступен через: %dч %dмин\n\n"+
		"Используй /my_quests чтобы увидеть текущие квесты.",
		typeLabel(d.Type), d.Hours, d.Minutes)
}

// ToggleToast is the short callback answer after a toggle.
func ToggleToast(res *command.ToggleTaskResult) string {
	if res.Blocked {
		return "✅ Задание уже выполнено"
	}
	if !res.Outcome.Completed {
		return "⬜ Отметка снята"
	}

	var parts []string
	if res.ExpAwarded > 0 {
		parts = append(parts, fmt.Sprintf("+%d опыта", res.ExpAwarded))
	}
	if res.Outcome.QuestCompleted() {
		parts = append(parts, "квест выполнен!")
	}
	if res.LeveledUp() {
		parts = append(parts, fmt.Sprintf("новый уровень %d!", res.LevelAfter))
	}
	if len(parts) == 0 {
		return "✅ Задание выполнено"
	}
	return "✅ " + strings.Join(parts, ", ")
}

// LevelUp announces a new level in the chat.
func LevelUp(level int) string {
	return fmt.Sprintf("🎉 <b>НОВЫЙ УРОВЕНЬ!</b>\n\nТеперь ты на уровне <b>%d</b>. Система видит твою силу!", level)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE, HISTORY, ADMIN
// ══════════════════════════════════════════════════════════════════════════════

// ProgressBar renders done/total as a fixed-width bar.
func ProgressBar(done, total, width int) string {
	if total <= 0 || width <= 0 {
		return strings.Repeat("░", max(width, 0))
	}
	filled := done * width / total
	filled = min(max(filled, 0), width)
	return strings.Repeat("▓", filled) + strings.Repeat("░", width-filled)
}

// Profile renders the /profile card.
func Profile(p *query.UserProfile) string {
	var b strings.Builder

	name := p.User.FirstName
	if name == "" {
		name = "Герой"
	}
	fmt.Fprintf(&b, "🧙 <b>%s</b>\n\n", html.EscapeString(name))
	fmt.Fprintf(&b, "⭐ Уровень: <b>%d</b>\n", p.Progress.Level)
	fmt.Fprintf(&b, "✨ Опыт: %d\n", p.User.Experience)
	fmt.Fprintf(&b, "📈 До следующего уровня: %s %d/%d\n\n",
		ProgressBar(p.Progress.Progress, p.Progress.ExpForNext, 10),
		p.Progress.Progress, p.Progress.ExpForNext)
	fmt.Fprintf(&b, "✅ Выполнено квестов: %d\n", p.Completed)
	fmt.Fprintf(&b, "⚔️ Активных: %d\n", p.Pending)
	fmt.Fprintf(&b, "💀 Провалено: %d", p.Failed)
	if !p.User.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "\n\n🗓 В игре с %s", timeutil.FormatRussian(p.User.CreatedAt, time.UTC))
	}

	return b.String()
}

// History renders recent chat messages, oldest first.
func History(msgs []*chat.Message, loc *time.Location) string {
	if len(msgs) == 0 {
		return "📭 История пуста."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🗂 <b>Последние сообщения</b> (%d)\n\n", len(msgs))
	for _, m := range msgs {
		who := "🤖"
		if m.IsFromUser {
			who = "👤"
		}
		fmt.Fprintf(&b, "%s <i>%s</i> %s\n", who, timeutil.FormatShort(m.CreatedAt, loc), html.EscapeString(truncate(m.Text, 80)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// AdminStats renders the /admin_stats summary.
func AdminStats(s *query.AdminStats) string {
	return fmt.Sprintf("📊 <b>Статистика бота</b>\n\n"+
		"👥 Всего пользователей: <b>%d</b>\n"+
		"✅ Выполнено квестов: <b>%d</b>\n"+
		"⚔️ Активных квестов: <b>%d</b>\n"+
		"💀 Провалено квестов: <b>%d</b>\n"+
		"⭐ Средний уровень: <b>%.1f</b>\n",
		s.TotalUsers, s.CompletedQuests, s.PendingQuests, s.FailedQuests, s.AverageLevel)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
