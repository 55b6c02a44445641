// Package idgenerator hands out connection identities. Zero is never issued,
// so a zero ID always means "no connection".
package idgenerator

import "sync/atomic"

// IdGenerator issues increasing uint32 IDs and is safe for concurrent use.
// After the counter wraps it continues from 1.
type IdGenerator struct {
	id atomic.Uint32
}

// NewIdGenerator creates an IdGenerator whose first Id is startValue+1.
//
// Parameters:
//   - startValue: The last ID considered taken; 0 starts the sequence at 1
//
// Returns:
//   - A new IdGenerator instance
func NewIdGenerator(startValue uint32) *IdGenerator {
	gen := &IdGenerator{}
	gen.id.Store(startValue)
	return gen
}

// Id returns the next ID, skipping zero when the counter wraps.
func (g *IdGenerator) Id() uint32 {
	for {
		if id := g.id.Add(1); id != 0 {
			return id
		}
	}
}
