package badge

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"ordersync/internal/order"
)

func TestSeedIsAuthoritative(t *testing.T) {
	c := NewCounter()
	c.Observe(order.TabNew, "O1")
	c.Observe(order.TabNew, "O2")
	assert.Equal(t, 2, c.Count(order.TabNew))

	c.Seed(order.TabNew, 5, []string{"O1", "O2"})
	assert.Equal(t, 5, c.Count(order.TabNew))

	c.Seed(order.TabNew, -3, nil)
	assert.Equal(t, 0, c.Count(order.TabNew))
}

func TestObserveCountsEachOrderOnce(t *testing.T) {
	c := NewCounter()
	c.Seed(order.TabNew, 1, []string{"O1"})

	assert.False(t, c.Observe(order.TabNew, "O1"), "already accounted for by the server")
	assert.True(t, c.Observe(order.TabNew, "O2"))
	assert.False(t, c.Observe(order.TabNew, "O2"), "duplicate push")
	assert.Equal(t, 2, c.Count(order.TabNew))

	assert.True(t, c.Observe(order.TabConfirmed, "O2"), "tabs are independent")
	assert.Equal(t, map[order.Tab]int{order.TabNew: 2, order.TabConfirmed: 1}, c.Counts())
}

func TestAcknowledgeOnce(t *testing.T) {
	c := NewCounter()
	c.Observe(order.TabNew, "O1")

	assert.True(t, c.Acknowledge(order.TabNew, "O1"))
	assert.False(t, c.Acknowledge(order.TabNew, "O1"))
	assert.Equal(t, 0, c.Count(order.TabNew))
}

func TestNeverNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	c := NewCounter()

	for i := 0; i < 5000; i++ {
		id := fmt.Sprintf("O%d", rng.Intn(50))
		switch rng.Intn(4) {
		case 0:
			c.Observe(order.TabNew, id)
		case 1, 2:
			c.Acknowledge(order.TabNew, id)
		case 3:
			if rng.Intn(20) == 0 {
				c.Seed(order.TabNew, rng.Intn(5)-2, nil)
			}
		}
		if c.Count(order.TabNew) < 0 {
			t.Fatalf("count went negative after %d operations", i)
		}
	}
}
