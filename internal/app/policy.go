package app

import "github.com/dkeye/callroom/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a connection whose outbound channel is full.
type Policy interface {
	OnBackPressure(conn domain.ConnectionID, kind domain.Kind) BackpressureAction
}

// SimplePolicy kicks slow consumers.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.ConnectionID, domain.Kind) BackpressureAction {
	return KickMember
}

// TolerantPolicy drops the frame and keeps the connection.
type TolerantPolicy struct{}

func (TolerantPolicy) OnBackPressure(domain.ConnectionID, domain.Kind) BackpressureAction {
	return DropFrame
}

func PolicyByName(name string) Policy {
	if name == "drop" {
		return TolerantPolicy{}
	}
	return SimplePolicy{}
}
