package app

import "github.com/dkeye/Molian/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickConn
)

// Policy decides what happens to a connection whose queue is full.
// Neither action retries the frame.
type Policy interface {
	OnBackPressure(c core.Conn) BackpressureAction
}

type DropPolicy struct{}

func (DropPolicy) OnBackPressure(core.Conn) BackpressureAction { return DropFrame }

type KickPolicy struct{}

func (KickPolicy) OnBackPressure(core.Conn) BackpressureAction { return KickConn }

// PolicyFor maps the slow_consumer config value; unknown values drop.
func PolicyFor(name string) Policy {
	if name == "kick" {
		return KickPolicy{}
	}
	return DropPolicy{}
}
