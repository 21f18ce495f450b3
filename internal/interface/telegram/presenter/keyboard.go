// Package presenter formats data for Telegram display.
// Presenters handle the conversion from application results to user-friendly
// Telegram messages and keyboards.
package presenter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/questforge/questbot/internal/domain/quest"
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYBOARD TYPES
// These types represent Telegram keyboards in a transport-agnostic way.
// The bot converts them to API markup before sending.
// ══════════════════════════════════════════════════════════════════════════════

// InlineKeyboard represents an inline keyboard.
type InlineKeyboard struct {
	Rows [][]InlineButton
}

// InlineButton represents a single inline button.
type InlineButton struct {
	// Text is the button text.
	Text string

	// CallbackData is the callback data (for callback buttons).
	CallbackData string
}

// NewInlineKeyboard creates a new empty inline keyboard.
func NewInlineKeyboard() *InlineKeyboard {
	return &InlineKeyboard{
		Rows: make([][]InlineButton, 0),
	}
}

// AddRow adds a row of buttons.
func (k *InlineKeyboard) AddRow(buttons ...InlineButton) *InlineKeyboard {
	k.Rows = append(k.Rows, buttons)
	return k
}

// CallbackButton creates a callback button.
func CallbackButton(text, callbackData string) InlineButton {
	return InlineButton{
		Text:         text,
		CallbackData: callbackData,
	}
}

// ReplyKeyboard is the persistent menu under the input field.
type ReplyKeyboard struct {
	Rows        [][]string
	Placeholder string
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN MENU
// ══════════════════════════════════════════════════════════════════════════════

// Menu button labels. Typed text is matched against them.
const (
	MenuMyQuests = "📋 Мои квесты"
	MenuProfile  = "📊 Статистика"
	MenuDaily    = "⚔️ Дейли квест"
	MenuWeekly   = "🏆 Недельный квест"
	MenuHelp     = "❓ Помощь"
)

// MainMenu returns the reply keyboard shown after /start.
func MainMenu() *ReplyKeyboard {
	return &ReplyKeyboard{
		Rows: [][]string{
			{MenuMyQuests, MenuProfile},
			{MenuDaily, MenuWeekly},
			{MenuHelp},
		},
		Placeholder: "Выбери команду из меню",
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TASK KEYBOARD
// ══════════════════════════════════════════════════════════════════════════════

// ToggleTaskPrefix starts the callback data of a task button.
const ToggleTaskPrefix = "toggle_task:"

// TaskKeyboard builds one button per task: "✅ Задание N" or "⬜ Задание N".
// Finished and failed quests get no keyboard.
func TaskKeyboard(q quest.Snapshot) *InlineKeyboard {
	if q.Status != quest.StatusPending && q.Status != quest.StatusCompleted {
		return nil
	}

	kb := NewInlineKeyboard()
	for _, t := range q.Tasks {
		mark := "⬜"
		if t.Done {
			mark = "✅"
		}
		kb.AddRow(CallbackButton(
			fmt.Sprintf("%s Задание %d", mark, t.Index+1),
			ToggleTaskData(q.ID, t.Index),
		))
	}
	return kb
}

// ToggleTaskData encodes "toggle_task:{questID}:{index}".
func ToggleTaskData(id quest.ID, index int) string {
	return ToggleTaskPrefix + strconv.FormatInt(int64(id), 10) + ":" + strconv.Itoa(index)
}

// ParseToggleTaskData decodes callback data produced by ToggleTaskData.
func ParseToggleTaskData(data string) (quest.ID, int, error) {
	rest, ok := strings.CutPrefix(data, ToggleTaskPrefix)
	if !ok {
		return 0, 0, fmt.Errorf("not a toggle callback: %q", data)
	}

	idPart, idxPart, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed toggle callback: %q", data)
	}

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, 0, fmt.Errorf("malformed quest id in %q", data)
	}
	idx, err := strconv.Atoi(idxPart)
	if err != nil || idx < 0 {
		return 0, 0, fmt.Errorf("malformed task index in %q", data)
	}

	return quest.ID(id), idx, nil
}
