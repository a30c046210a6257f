package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyFormats(t *testing.T) {
	assert.Equal(t, "weather:latest:-31.4000:-64.2000", latestKey(-31.4, -64.2))
	assert.Equal(t, "weather:current:-31.4000:-64.2000", currentKey(-31.4, -64.2))

	date := time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC)
	assert.Equal(t, "weather:forecast:-31.4000:-64.2000:2024-03-15",
		forecastKey(-31.4, -64.2, date))
}

func TestKeyRounding(t *testing.T) {
	// Nearby reads and writes must agree on the key at 4 decimal places.
	assert.Equal(t, latestKey(-31.40001, -64.19999), latestKey(-31.4000, -64.2000))
}

func TestNewRedisStoreDefaults(t *testing.T) {
	s := NewRedisStore(nil, TTLs{})
	assert.Equal(t, time.Hour, s.ttls.Latest)
	assert.Equal(t, 24*time.Hour, s.ttls.Forecast)
	assert.Equal(t, 15*time.Minute, s.ttls.Current)

	s = NewRedisStore(nil, TTLs{Current: time.Minute})
	assert.Equal(t, time.Minute, s.ttls.Current)
	assert.Equal(t, time.Hour, s.ttls.Latest)
}
