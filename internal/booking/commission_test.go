package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommission_Split(t *testing.T) {
	c := NewCommission(DefaultCommissionRate)

	tests := []struct {
		rate         float64
		psychologist float64
		platform     float64
	}{
		{rate: 150, psychologist: 127.5, platform: 22.5},
		{rate: 200, psychologist: 170, platform: 30},
		{rate: 99.99, psychologist: 84.99, platform: 15},
		{rate: 0, psychologist: 0, platform: 0},
	}

	for _, tt := range tests {
		p, f := c.Split(tt.rate)
		assert.InDelta(t, tt.psychologist, p, 0.0001, "psychologist share of %v", tt.rate)
		assert.InDelta(t, tt.platform, f, 0.0001, "platform share of %v", tt.rate)
		assert.InDelta(t, roundCents(tt.rate), p+f, 0.0001)
	}
}

func TestNewCommission_FallsBackOnInvalidRate(t *testing.T) {
	assert.Equal(t, DefaultCommissionRate, NewCommission(-1).Rate)
	assert.Equal(t, DefaultCommissionRate, NewCommission(1).Rate)
	assert.Equal(t, 0.2, NewCommission(0.2).Rate)
}
