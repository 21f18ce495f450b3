package handler

import (
	"strings"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"

	"github.com/questforge/questbot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// MENU MATCHER
// Maps plain text to a command. Menu buttons match exactly; typed text is
// matched fuzzily against keywords so "недельный" or "мои квесты" still work.
// ══════════════════════════════════════════════════════════════════════════════

// Command names routed by the bot.
const (
	CmdStart      = "start"
	CmdHelp       = "help"
	CmdMyQuests   = "my_quests"
	CmdDaily      = "generate_daily"
	CmdWeekly     = "generate_weekly"
	CmdProfile    = "profile"
	CmdHistory    = "history"
	CmdAdminStats = "admin_stats"
)

// minFuzzyRunes is the shortest text considered for fuzzy matching.
const minFuzzyRunes = 3

type menuEntry struct {
	keywords string
	command  string
}

type menuEntries []menuEntry

func (m menuEntries) String(i int) string { return m[i].keywords }
func (m menuEntries) Len() int            { return len(m) }

// Menu resolves button labels and free text to commands.
type Menu struct {
	exact   map[string]string
	entries menuEntries
}

// NewMenu creates the matcher for the main menu.
func NewMenu() *Menu {
	return &Menu{
		exact: map[string]string{
			presenter.MenuMyQuests: CmdMyQuests,
			presenter.MenuProfile:  CmdProfile,
			presenter.MenuDaily:    CmdDaily,
			presenter.MenuWeekly:   CmdWeekly,
			presenter.MenuHelp:     CmdHelp,
		},
		entries: menuEntries{
			{keywords: "мои квесты", command: CmdMyQuests},
			{keywords: "статистика профиль", command: CmdProfile},
			{keywords: "дейли квест ежедневный", command: CmdDaily},
			{keywords: "недельный квест", command: CmdWeekly},
			{keywords: "помощь help", command: CmdHelp},
			{keywords: "история", command: CmdHistory},
		},
	}
}

// Match returns the command for text. Ambiguous fuzzy matches are rejected.
func (m *Menu) Match(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if cmd, ok := m.exact[text]; ok {
		return cmd, true
	}

	pattern := strings.ToLower(text)
	if utf8.RuneCountInString(pattern) < minFuzzyRunes {
		return "", false
	}

	matches := fuzzy.FindFrom(pattern, m.entries)
	if len(matches) == 0 {
		return "", false
	}
	if len(matches) > 1 && matches[0].Score == matches[1].Score {
		return "", false
	}
	return m.entries[matches[0].Index].command, true
}
