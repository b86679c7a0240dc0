package runtime

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

// RandomGenerator supplies load-balancing draws and request ids. The data
// plane treats UUID failure as recoverable: the request proceeds without an
// id and a stat is bumped.
type RandomGenerator interface {
	// Random returns a uniform draw.
	Random() uint64

	// UUID returns a new random request id.
	UUID() (string, error)
}

// NewRandomGenerator returns the production generator.
func NewRandomGenerator() RandomGenerator {
	return &randomGenerator{}
}

type randomGenerator struct{}

func (randomGenerator) Random() uint64 { return rand.Uint64() }

func (randomGenerator) UUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("runtime: generate uuid: %w", err)
	}
	return id.String(), nil
}
