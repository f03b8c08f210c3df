package cartsync

import (
	"errors"

	"go.uber.org/zap"
)

// ErrPermanent marks remote failures that retrying with the same input cannot fix.
var ErrPermanent = errors.New("permanent sync failure")

type Kind int

const (
	KindOK Kind = iota
	KindTransient
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindTransient:
		return "transient_error"
	case KindPermanent:
		return "permanent_error"
	default:
		return "unknown"
	}
}

type Op string

const (
	OpReconcile Op = "reconcile"
	OpFetch     Op = "fetch"
	OpPush      Op = "push"
)

type Winner string

const (
	WinnerNone   Winner = "none"
	WinnerRemote Winner = "remote"
	WinnerLocal  Winner = "local"
)

type Result struct {
	Op     Op
	Kind   Kind
	UserID string
	Items  int
	Winner Winner
	Err    error
}

func (r Result) OK() bool {
	return r.Kind == KindOK
}

// Classify maps a remote error to a result kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrPermanent):
		return KindPermanent
	default:
		return KindTransient
	}
}

// Observer receives the outcome of every reconcile, fetch and push.
type Observer interface {
	Observe(Result)
}

type ObserverFunc func(Result)

func (f ObserverFunc) Observe(r Result) { f(r) }

type LogObserver struct {
	logger *zap.Logger
}

func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) Observe(r Result) {
	fields := []zap.Field{
		zap.String("op", string(r.Op)),
		zap.String("result", r.Kind.String()),
		zap.String("user_id", r.UserID),
		zap.Int("items", r.Items),
	}
	if r.Winner != "" {
		fields = append(fields, zap.String("winner", string(r.Winner)))
	}
	if r.Err != nil {
		o.logger.Warn("cart sync failed", append(fields, zap.Error(r.Err))...)
		return
	}
	o.logger.Debug("cart sync", fields...)
}
