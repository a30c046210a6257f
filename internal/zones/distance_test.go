package zones

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	t.Run("zero distance for identical points", func(t *testing.T) {
		assert.Zero(t, Haversine(-31.4, -64.2, -31.4, -64.2))
	})

	t.Run("symmetric", func(t *testing.T) {
		a := Haversine(-34.6, -58.4, -31.4, -64.2)
		b := Haversine(-31.4, -64.2, -34.6, -58.4)
		assert.InDelta(t, a, b, 1e-9)
	})

	t.Run("buenos aires to cordoba", func(t *testing.T) {
		// Great-circle distance is roughly 647 km.
		d := Haversine(-34.6037, -58.3816, -31.4201, -64.1888)
		assert.InDelta(t, 647, d, 10)
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		// ~111.2 km at the reference Earth radius.
		d := Haversine(-30, -60, -31, -60)
		assert.InDelta(t, 111.2, d, 0.5)
	})

	t.Run("triangle inequality", func(t *testing.T) {
		ab := Haversine(-34.6, -58.4, -31.4, -64.2)
		bc := Haversine(-31.4, -64.2, -24.8, -65.4)
		ac := Haversine(-34.6, -58.4, -24.8, -65.4)
		assert.LessOrEqual(t, ac, ab+bc)
	})
}
