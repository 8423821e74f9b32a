package poller

// Event is one readiness notification
type Event struct {
	Fd     int
	Events uint32
}

// Poller is the I/O multiplexing interface. Wake interrupts a blocked Wait
// from any goroutine; every other method belongs to the goroutine that
// calls Wait.
type Poller interface {
	Add(fd int, events uint32) error
	Mod(fd int, events uint32) error
	Remove(fd int) error
	Wait(timeout int) ([]Event, error)
	Wake() error
	Close() error
}
