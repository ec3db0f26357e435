package dice

import (
	"fmt"
	"strconv"
	"strings"

	gemerr "github.com/ts020/sl-gem/internal/errors"
)

// RollResult is the outcome of rolling count dice of the same size
type RollResult struct {
	Total int
	Rolls []int
	Bonus int
	Count int
	Sides int
}

// RawTotal returns the sum of the dice without the bonus
func (r *RollResult) RawTotal() int {
	return r.Total - r.Bonus
}

func (r *RollResult) String() string {
	rolls := make([]string, len(r.Rolls))
	for i, roll := range r.Rolls {
		rolls[i] = strconv.Itoa(roll)
	}
	compact := "[" + strings.Join(rolls, ",") + "]"
	if r.Bonus == 0 {
		return fmt.Sprintf("%dd%d %s = %d", r.Count, r.Sides, compact, r.Total)
	}
	return fmt.Sprintf("%dd%d%+d %s = %d", r.Count, r.Sides, r.Bonus, compact, r.Total)
}

func validate(count, sides int) error {
	if count < 1 {
		return gemerr.InvalidArgumentf("invalid dice count %d", count)
	}
	if sides < 1 {
		return gemerr.InvalidArgumentf("invalid dice size %d", sides)
	}
	return nil
}

func newResult(count, sides, bonus int, rolls []int) *RollResult {
	total := bonus
	for _, roll := range rolls {
		total += roll
	}
	return &RollResult{
		Total: total,
		Rolls: rolls,
		Bonus: bonus,
		Count: count,
		Sides: sides,
	}
}
