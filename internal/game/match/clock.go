package match

import "time"

// Clock abstrai o tempo para que o cronômetro da partida seja testável.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock usa o relógio do sistema.
func RealClock() Clock { return realClock{} }
