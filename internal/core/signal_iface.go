package core

//go:generate mockgen -source=signal_iface.go -destination=mocks/mock_signal.go -package=mocks

// Frame is a raw encoded outbound event.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues without blocking. It returns domain.ErrBackpressure
	// when the outbound queue is full and domain.ErrConnClosed after Close.
	TrySend(Frame) error
	Close()
}
