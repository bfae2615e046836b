package irq

// Line hands interrupt notifications from an asynchronous source to a waiting consumer.
// Notifications coalesce: raising an already raised line has no effect.
type Line struct {
	c chan struct{}
}

// NewLine creates a Line.
func NewLine() *Line {
	return &Line{c: make(chan struct{}, 1)}
}

// Raise signals the consumer without blocking.
func (line *Line) Raise() {
	select {
	case line.c <- struct{}{}:
	default:
	}
}

// C returns a channel that receives once per coalesced notification.
func (line *Line) C() <-chan struct{} {
	return line.c
}
