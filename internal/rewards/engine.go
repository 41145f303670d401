// Package rewards computes gamification outcomes for finished focus
// sessions: XP and levels, coins, daily streaks, and pet unlocks.
package rewards

import (
	"time"

	"github.com/glebschkv/phone-pet-paradise-sub011/internal/domain"
)

const (
	// Sessions shorter than a minute earn nothing.
	minRewardableSeconds = 60

	xpPerMinute     = 10
	coinsPerMinute  = 1
	completionBonus = 25

	dateLayout = "2006-01-02"
)

// DefaultPets is the unlockable pet catalog, ordered by level threshold.
var DefaultPets = []domain.Pet{
	{Name: "Pebble", Species: "turtle", UnlockLevel: 1},
	{Name: "Biscuit", Species: "hamster", UnlockLevel: 3},
	{Name: "Maple", Species: "red panda", UnlockLevel: 5},
	{Name: "Echo", Species: "owl", UnlockLevel: 8},
	{Name: "Nori", Species: "axolotl", UnlockLevel: 12},
	{Name: "Comet", Species: "fox", UnlockLevel: 16},
	{Name: "Juniper", Species: "dragon", UnlockLevel: 20},
}

// Result describes what a single session earned.
type Result struct {
	XPGained       int          `json:"xp_gained"`
	CoinsGained    int          `json:"coins_gained"`
	Level          int          `json:"level"`
	LeveledUp      bool         `json:"leveled_up"`
	UnlockedPets   []domain.Pet `json:"unlocked_pets,omitempty"`
	CurrentStreak  int          `json:"current_streak"`
	StreakExtended bool         `json:"streak_extended"`
}

// Engine applies reward rules to a device's progress.
type Engine struct {
	pets []domain.Pet
}

// NewEngine creates an Engine with the default pet catalog.
func NewEngine() *Engine {
	return &Engine{pets: DefaultPets}
}

// NewEngineWithPets creates an Engine with a custom pet catalog.
func NewEngineWithPets(pets []domain.Pet) *Engine {
	return &Engine{pets: pets}
}

// LevelForXP returns the level reached with cumulative XP. Each level n
// requires 100*n XP on top of the previous one, so early levels come fast
// and later ones stretch out.
func LevelForXP(xp int) int {
	level := 1
	threshold := 0
	for {
		threshold += 100 * level
		if xp < threshold {
			return level
		}
		level++
	}
}

// Apply mutates progress with the rewards earned by the session and
// returns what changed. Abandoned or sub-minute sessions update the streak
// bookkeeping only.
func (e *Engine) Apply(progress *domain.Progress, session *domain.FocusSession, now time.Time) Result {
	res := Result{Level: progress.Level}

	if session.Completed && session.ActualSeconds >= minRewardableSeconds {
		minutes := session.FocusMinutes()
		res.XPGained = minutes * xpPerMinute
		res.CoinsGained = minutes * coinsPerMinute
		if session.Mode == domain.ModeCountdown {
			res.CoinsGained += completionBonus
		}

		progress.XP += res.XPGained
		progress.Coins += res.CoinsGained

		newLevel := LevelForXP(progress.XP)
		if newLevel > progress.Level {
			res.LeveledUp = true
		}
		progress.Level = newLevel
		res.Level = newLevel

		res.UnlockedPets = e.unlockPets(progress)
	}

	res.StreakExtended = e.updateStreak(progress, now)
	res.CurrentStreak = progress.CurrentStreak
	progress.UpdatedAt = now

	return res
}

func (e *Engine) unlockPets(progress *domain.Progress) []domain.Pet {
	var unlocked []domain.Pet
	for _, pet := range e.pets {
		if pet.UnlockLevel > progress.Level || progress.HasPet(pet.Name) {
			continue
		}
		progress.UnlockedPets = append(progress.UnlockedPets, pet.Name)
		unlocked = append(unlocked, pet)
	}
	return unlocked
}

// updateStreak advances the daily streak: same day keeps it, the next day
// extends it, any gap resets it to 1.
func (e *Engine) updateStreak(progress *domain.Progress, now time.Time) bool {
	today := now.Format(dateLayout)
	if progress.LastActiveDate == today {
		return false
	}

	yesterday := now.AddDate(0, 0, -1).Format(dateLayout)
	if progress.LastActiveDate == yesterday {
		progress.CurrentStreak++
	} else {
		progress.CurrentStreak = 1
	}
	if progress.CurrentStreak > progress.LongestStreak {
		progress.LongestStreak = progress.CurrentStreak
	}

	progress.LastActiveDate = today
	return true
}

// PetsForLevel returns the catalog entries reachable at the given level.
func (e *Engine) PetsForLevel(level int) []domain.Pet {
	var pets []domain.Pet
	for _, pet := range e.pets {
		if pet.UnlockLevel <= level {
			pets = append(pets, pet)
		}
	}
	return pets
}

// Catalog returns the full pet catalog.
func (e *Engine) Catalog() []domain.Pet {
	return e.pets
}
