package vm

import (
	"github.com/vango-dev/xvm/pkg/bridge"
	"github.com/vango-dev/xvm/pkg/dom"
	"github.com/vango-dev/xvm/pkg/reactive"
	"github.com/vango-dev/xvm/pkg/sched"
	"github.com/vango-dev/xvm/pkg/template"
)

// Page is one bootstrapped component tree with its render document and
// executor.
type Page struct {
	id   string
	app  *App
	doc  *dom.Document
	exec *sched.Executor
	root *Instance

	dispatch bridge.Dispatcher

	visible   bool
	destroyed bool
}

func newPage(a *App, opts BootstrapOptions) *Page {
	p := &Page{id: opts.ID, app: a, dispatch: opts.Dispatch}

	execOpts := []sched.Option{
		sched.WithLogger(a.logger),
		sched.WithOnFlushed(p.commit),
		sched.WithOnError(p.flushFailed),
	}
	p.exec = sched.NewExecutor(opts.Deferrer, append(execOpts, a.execOpts...)...)

	docOpts := []dom.Option{
		dom.WithLogger(a.logger),
		dom.WithOnPending(p.exec.Arm),
	}
	p.doc = dom.NewDocument(opts.ID, opts.Sink, append(docOpts, a.docOpts...)...)
	return p
}

// ID returns the page id.
func (p *Page) ID() string { return p.id }

// App returns the owning app.
func (p *Page) App() *App { return p.app }

// Document returns the render document.
func (p *Page) Document() *dom.Document { return p.doc }

// Executor returns the page's task queue.
func (p *Page) Executor() *sched.Executor { return p.exec }

// Root returns the root instance.
func (p *Page) Root() *Instance { return p.root }

// Visible reports whether the page was shown and not hidden since.
func (p *Page) Visible() bool { return p.visible && !p.destroyed }

// Destroyed reports whether Destroy was called.
func (p *Page) Destroyed() bool { return p.destroyed }

// Fatal reports whether the command sink failed. A fatal page stops
// compiling.
func (p *Page) Fatal() bool { return p.doc.Failed() }

// Schedule implements reactive.Scheduler.
func (p *Page) Schedule(w *reactive.Watcher) {
	if p.destroyed {
		return
	}
	p.exec.Enqueue(w)
}

// Flush runs pending watchers now and commits their output. Output
// produced before a failing task is committed too.
func (p *Page) Flush() error {
	err := p.exec.Flush()
	if err != nil {
		p.commit()
	}
	return err
}

// Show marks the page visible and raises onShow through the tree.
func (p *Page) Show() {
	if p.destroyed {
		return
	}
	p.visible = true
	p.root.broadcastLifecycle(OnShow, nil)
}

// Hide marks the page hidden and raises onHide through the tree.
func (p *Page) Hide() {
	if p.destroyed {
		return
	}
	p.visible = false
	p.root.broadcastLifecycle(OnHide, nil)
}

// BackPress raises onBackPress on the root. It reports whether a handler
// consumed the press.
func (p *Page) BackPress() bool {
	if p.destroyed {
		return false
	}
	return template.Truthy(p.root.emit(&Event{Type: OnBackPress}))
}

// MenuPress raises onMenuPress on the root. It reports whether a handler
// consumed the press.
func (p *Page) MenuPress() bool {
	if p.destroyed {
		return false
	}
	return template.Truthy(p.root.emit(&Event{Type: OnMenuPress}))
}

// Refresh raises onRefresh on the root with query.
func (p *Page) Refresh(query any) {
	if p.destroyed {
		return
	}
	p.root.emit(&Event{Type: OnRefresh, Detail: query})
}

// FireEvent delivers a host event to the node with ref.
func (p *Page) FireEvent(ref int, typ string, detail any) error {
	if p.destroyed {
		return nil
	}
	return p.doc.FireEvent(ref, typ, detail)
}

// Destroy disposes the tree, drops pending work and closes the document.
func (p *Page) Destroy() {
	if p.destroyed {
		return
	}
	p.root.dispose(false)
	p.destroyed = true
	p.exec.Reset()
	p.doc.Close()
}

// commit runs after every successful flush.
func (p *Page) commit() {
	if err := p.doc.FinishUpdate(); err != nil {
		p.app.report(err)
	}
}

// flushFailed handles a deferred flush that ended with a task error.
// Output produced before the failure is still committed.
func (p *Page) flushFailed(err error) {
	p.app.report(err)
	p.commit()
}
