package dice

import (
	"math/rand"
	"sync"
)

// randomRoller implements Roller with a seeded source. Safe for concurrent use.
type randomRoller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomRoller creates a new random dice roller
func NewRandomRoller(seed int64) Roller {
	return &randomRoller{rng: rand.New(rand.NewSource(seed))}
}

// Roll implements Roller.Roll
func (r *randomRoller) Roll(count, sides, bonus int) (*RollResult, error) {
	if err := validate(count, sides); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rolls := make([]int, count)
	for i := range rolls {
		rolls[i] = r.rng.Intn(sides) + 1
	}
	return newResult(count, sides, bonus, rolls), nil
}
