package vm

import (
	"regexp"
	"slices"
	"strings"

	"github.com/vango-dev/xvm/internal/errors"
	"github.com/vango-dev/xvm/pkg/reactive"
	"github.com/vango-dev/xvm/pkg/template"
)

var watchPath = regexp.MustCompile(`^[\w$]+(\.[\w$]+)*$`)

// newWatcher creates an eager watcher owned by i and scheduled on its
// page.
func (i *Instance) newWatcher(desc string, getter reactive.Getter, cb func(value, old any)) *reactive.Watcher {
	w := reactive.NewWatcher(getter, reactive.WatcherOptions{
		Description: i.typ + ": " + desc,
		Callback:    cb,
		Owner:       i,
		Scheduler:   i.page,
	})
	i.watchers = append(i.watchers, w)
	return w
}

// evalWatcher watches an Expr or constant evaluated in s.
func (i *Instance) evalWatcher(desc string, v any, s template.Scope, cb func(value, old any)) *reactive.Watcher {
	return i.newWatcher(desc, func() (any, error) {
		return template.Eval(v, s)
	}, cb)
}

// Watch calls cb whenever the value at a dotted data path changes.
// Containers count as changed on every notification.
func (i *Instance) Watch(path string, cb func(value, old any)) (*reactive.Watcher, error) {
	if i.destroyed {
		return nil, nil
	}
	if !watchPath.MatchString(path) {
		return nil, errors.Newf(errors.CategoryEvaluation, "Invalid watch path %q", path).WithComponent(i.typ)
	}
	parts := strings.Split(path, ".")
	for _, p := range parts[:len(parts)-1] {
		if reservedKey(p) {
			return nil, errors.Newf(errors.CategoryEvaluation, "Watch path %q crosses reserved key %q", path, p).WithComponent(i.typ)
		}
	}
	return i.newWatcher("watch "+path, func() (any, error) {
		return template.Path(path)(i)
	}, cb), nil
}

// WatchMethod is Watch with a method as the callback.
func (i *Instance) WatchMethod(path, method string) (*reactive.Watcher, error) {
	if _, ok := i.methods[method]; !ok {
		return nil, errors.New("E106").WithComponent(i.typ).WithDetailf("method %q", method)
	}
	return i.Watch(path, func(value, old any) {
		if _, err := i.Call(method, value, old); err != nil {
			i.handleError(err, "watch "+path)
		}
	})
}

// RemoveWatcher implements reactive.Owner.
func (i *Instance) RemoveWatcher(w *reactive.Watcher) {
	i.watchers = slices.DeleteFunc(i.watchers, func(x *reactive.Watcher) bool {
		return x == w
	})
}

// KeyAdded implements reactive.KeyObserver. A key added to data after
// creation invalidates every watcher of the instance.
func (i *Instance) KeyAdded(string) {
	i.digest()
}

func (i *Instance) digest() {
	if i.destroyed {
		return
	}
	for _, w := range slices.Clone(i.watchers) {
		w.Invalidate()
	}
}
