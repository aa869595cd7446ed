package jsonstop

// Controller tracks brace balance across streamed tokens. It starts in the
// searching state and signals stop once the balance falls back to zero after
// the first opening brace. A Controller serves one generation at a time.
type Controller struct {
	flags   BraceFlags
	depth   int
	started bool
}

// NewController returns a searching controller over flags.
func NewController(flags BraceFlags) *Controller {
	return &Controller{flags: flags}
}

// Reset returns the controller to the searching state.
func (c *Controller) Reset() {
	c.depth = 0
	c.started = false
}

// Observe accounts for one generated token and reports whether generation
// should stop. Opening is applied before closing, so a lone "{}" token both
// starts and completes the object.
func (c *Controller) Observe(id int) bool {
	if c.flags.opens(id) {
		c.depth++
		c.started = true
	}
	if c.flags.closes(id) {
		c.depth--
	}
	return c.Done()
}

// Done reports whether a stop has been signalled.
func (c *Controller) Done() bool {
	return c.started && c.depth <= 0
}

// Depth returns the current brace balance.
func (c *Controller) Depth() int {
	return c.depth
}

// Started reports whether an opening brace has been seen since the last reset.
func (c *Controller) Started() bool {
	return c.started
}

// Text feeds decoded text instead of a token id, for engines that stream
// fragments. Every brace in the fragment is counted and the controller stops
// at the first one that closes the object.
func (c *Controller) Text(fragment string) bool {
	for i := 0; i < len(fragment); i++ {
		switch fragment[i] {
		case '{':
			c.depth++
			c.started = true
		case '}':
			c.depth--
		}
		if c.Done() {
			return true
		}
	}
	return c.Done()
}
