package state

// Counter is the server-confirmed unread count. It never goes below zero.
type Counter struct {
	value int
}

// Value returns the current count.
func (c *Counter) Value() int { return c.value }

// Increment adds one for a pushed notification.
func (c *Counter) Increment() { c.value++ }

// Set replaces the count, clamping at zero.
func (c *Counter) Set(n int) {
	c.value = max(n, 0)
}

// Sub subtracts n, clamping at zero.
func (c *Counter) Sub(n int) {
	c.Set(c.value - n)
}
