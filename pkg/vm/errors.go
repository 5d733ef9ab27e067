package vm

import (
	"github.com/vango-dev/xvm/internal/errors"
)

// HandleError implements reactive.Owner.
func (i *Instance) HandleError(err error) {
	i.handleError(err, "")
}

// handleError offers err to each OnErrorCaptured hook from i up to the
// root. A hook returning false stops it; otherwise it reaches the app's
// root handler.
func (i *Instance) handleError(err error, info string) {
	xe := errors.FromError(err, "E120").WithComponent(i.typ)
	if info != "" {
		xe.WithInfo(info)
	}
	for cur := i; cur != nil; cur = cur.parent {
		if cur.def.OnErrorCaptured == nil {
			continue
		}
		if !cur.captureError(xe, i, info) {
			return
		}
	}
	i.page.app.report(xe)
}

// captureError runs the hook. A panicking hook is logged and the error
// keeps propagating.
func (i *Instance) captureError(err error, origin *Instance, info string) (propagate bool) {
	defer func() {
		if r := recover(); r != nil {
			i.page.app.logError(errors.Recovered("E143", r).
				WithComponent(i.typ).
				WithDetailf("while handling: %v", err))
			propagate = true
		}
	}()
	return i.def.OnErrorCaptured(err, origin, info)
}

// warn logs a diagnostic that does not interrupt anything.
func (i *Instance) warn(err error) {
	xe := errors.FromError(err, "E100").WithComponent(i.typ)
	i.logger().Warn(xe.Message,
		"code", xe.Code,
		"component", xe.Component,
		"detail", xe.Detail)
}
