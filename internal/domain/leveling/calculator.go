// Package leveling реализует кривую уровней и начисление опыта за задания.
// Все функции чистые: никаких побочных эффектов и глобального состояния.
package leveling

import (
	"github.com/questforge/questbot/internal/domain/quest"
)

// Rules - константы кривой уровней и наград.
type Rules struct {
	BaseExp       int // опыт для перехода на 2-й уровень
	ExpStep       int // прирост требования с каждым уровнем
	DailyTaskExp  int
	WeeklyTaskExp int
	DailyBonus    int // бонус за полное выполнение ежедневного квеста
	WeeklyBonus   int
}

// DefaultRules возвращает стандартные правила: 10 опыта на 2-й уровень, +5 за каждый следующий.
func DefaultRules() Rules {
	return Rules{
		BaseExp:       10,
		ExpStep:       5,
		DailyTaskExp:  1,
		WeeklyTaskExp: 3,
		DailyBonus:    1,
		WeeklyBonus:   3,
	}
}

// Progress - положение игрока на кривой уровней.
type Progress struct {
	Level      int
	Progress   int // опыт, набранный внутри текущего уровня
	ExpForNext int // сколько нужно на следующий уровень целиком
}

// Calculator считает уровни по правилам.
type Calculator struct {
	rules Rules
}

// NewCalculator создаёт калькулятор. Некорректные правила заменяются стандартными.
func NewCalculator(rules Rules) *Calculator {
	if rules.BaseExp <= 0 || rules.ExpStep < 0 {
		def := DefaultRules()
		rules.BaseExp, rules.ExpStep = def.BaseExp, def.ExpStep
	}
	return &Calculator{rules: rules}
}

// Rules возвращает правила калькулятора.
func (c *Calculator) Rules() Rules {
	return c.rules
}

// ExpRequiredForLevel возвращает опыт, нужный для перехода с уровня level-1 на level.
func (c *Calculator) ExpRequiredForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	return c.rules.BaseExp + (level-2)*c.rules.ExpStep
}

// CumulativeExpToReachLevel возвращает суммарный опыт, нужный для достижения уровня.
func (c *Calculator) CumulativeExpToReachLevel(level int) int {
	total := 0
	for l := 2; l <= level; l++ {
		total += c.ExpRequiredForLevel(l)
	}
	return total
}

// LevelFromExperience находит уровень L: cumulative(L) <= exp < cumulative(L+1).
func (c *Calculator) LevelFromExperience(totalExp int) Progress {
	if totalExp < 0 {
		totalExp = 0
	}

	level := 1
	reached := 0
	for {
		next := c.ExpRequiredForLevel(level + 1)
		if reached+next > totalExp {
			return Progress{
				Level:      level,
				Progress:   totalExp - reached,
				ExpForNext: next,
			}
		}
		reached += next
		level++
	}
}

// LevelFor реализует user.LevelCurve.
func (c *Calculator) LevelFor(experience int) int {
	return c.LevelFromExperience(experience).Level
}

// ExpForTaskCompletion возвращает опыт за одно выполненное задание.
// completedSoFar - сколько заданий было выполнено до этого.
func (c *Calculator) ExpForTaskCompletion(t quest.Type, completedSoFar, totalTasks int) int {
	perTask, bonus := c.rules.DailyTaskExp, c.rules.DailyBonus
	if t == quest.TypeWeekly {
		perTask, bonus = c.rules.WeeklyTaskExp, c.rules.WeeklyBonus
	}

	exp := perTask
	if totalTasks > 0 && completedSoFar+1 == totalTasks {
		exp += bonus
	}
	return exp
}
