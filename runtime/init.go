package runtime

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/sbl8/ntm/core"
)

// InitialState builds a starting state for a sequence of batch elements:
// memory entries drawn as |U(0,1)|, read addresses uniform over slots, and
// write addresses one-hot on a single slot drawn from the first half of
// memory. The same slot is used for every batch element and head.
func InitialState(cfg core.Config, batch int, rng *rand.Rand) (core.State, error) {
	if err := cfg.Validate(); err != nil {
		return core.State{}, err
	}
	if batch < 1 {
		return core.State{}, fmt.Errorf("%w: batch must be >= 1, got %d", core.ErrConfiguration, batch)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	start := int(rng.Float64() * float64(cfg.Slots) / 2)

	s := core.State{
		Memory: make([]*mat.Dense, batch),
		Heads:  make([]core.HeadState, cfg.Heads),
	}
	for b := range s.Memory {
		data := make([]float64, cfg.Slots*cfg.Width)
		for i := range data {
			data[i] = math.Abs(rng.Float64())
		}
		s.Memory[b] = mat.NewDense(cfg.Slots, cfg.Width, data)
	}
	for h := range s.Heads {
		read := mat.NewDense(batch, cfg.Slots, nil)
		write := mat.NewDense(batch, cfg.Slots, nil)
		for b := 0; b < batch; b++ {
			for i := 0; i < cfg.Slots; i++ {
				read.Set(b, i, 1/float64(cfg.Slots))
			}
			write.Set(b, start, 1)
		}
		s.Heads[h] = core.HeadState{Read: read, Write: write}
	}
	return s, nil
}
