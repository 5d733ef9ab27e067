package dom

import (
	"log/slog"

	xerrors "github.com/vango-dev/xvm/internal/errors"
)

// RootRef is the ref of the document element. The host creates it
// implicitly.
const RootRef = 0

// Observer receives committed batches.
type Observer interface {
	CommandsCommitted(docID string, cmds []Command)
}

// Option configures a Document.
type Option func(*Document)

// WithObserver sets the batch observer.
func WithObserver(o Observer) Option {
	return func(d *Document) {
		d.observer = o
	}
}

// WithOnPending sets a hook called when the first command after a commit
// is buffered, once creation has finished. Pages use it to arm a flush so
// output produced outside any task is still committed.
func WithOnPending(fn func()) Option {
	return func(d *Document) {
		d.onPending = fn
	}
}

// WithLogger sets the document logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Document) {
		d.logger = l
	}
}

// Document owns one render tree and its command buffer.
type Document struct {
	id      string
	sink    Sink
	root    *Node
	nextRef int
	nodes   map[int]*Node
	pending []Command

	created bool
	failed  bool
	closed  bool

	observer  Observer
	onPending func()
	logger    *slog.Logger
}

// NewDocument creates a document that commits to sink.
func NewDocument(id string, sink Sink, opts ...Option) *Document {
	d := &Document{
		id:      id,
		sink:    sink,
		nextRef: RootRef + 1,
		nodes:   make(map[int]*Node),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.root = &Node{doc: d, ref: RootRef, kind: KindElement, typ: "document"}
	d.nodes[RootRef] = d.root
	return d
}

// ID returns the document id.
func (d *Document) ID() string {
	return d.id
}

// Root returns the document element.
func (d *Document) Root() *Node {
	return d.root
}

// CreateElement creates a detached element.
func (d *Document) CreateElement(typ string) *Node {
	return d.newNode(KindElement, typ)
}

// CreateFragment creates a detached fragment.
func (d *Document) CreateFragment() *Node {
	return d.newNode(KindFragment, "")
}

func (d *Document) newNode(kind Kind, typ string) *Node {
	n := &Node{doc: d, ref: d.nextRef, kind: kind, typ: typ}
	d.nextRef++
	d.nodes[n.ref] = n
	return n
}

// NodeByRef looks up a live node.
func (d *Document) NodeByRef(ref int) (*Node, bool) {
	n, ok := d.nodes[ref]
	return n, ok
}

// Pending returns the number of buffered commands.
func (d *Document) Pending() int {
	return len(d.pending)
}

// Created reports whether FinishCreate has run.
func (d *Document) Created() bool {
	return d.created
}

// Failed reports whether the sink rejected a batch. A failed document
// keeps buffering nothing.
func (d *Document) Failed() bool {
	return d.failed
}

// Closed reports whether Close was called.
func (d *Document) Closed() bool {
	return d.closed
}

// FinishCreate appends createFinish and commits the initial build.
func (d *Document) FinishCreate() error {
	if d.created {
		return nil
	}
	d.emit(Command{Op: OpCreateFinish})
	d.created = true
	return d.commit()
}

// FinishUpdate appends updateFinish and commits, but only when commands
// were produced since the last commit.
func (d *Document) FinishUpdate() error {
	if !d.created || len(d.pending) == 0 {
		return nil
	}
	d.emit(Command{Op: OpUpdateFinish})
	return d.commit()
}

// Close discards buffered commands. No further commands are produced.
func (d *Document) Close() {
	d.closed = true
	d.pending = nil
}

// Event is delivered to element listeners.
type Event struct {
	Type   string
	Target *Node
	Detail any
}

// Listener handles an element event.
type Listener func(Event) error

// FireEvent delivers a host event to the listeners of the node with ref.
func (d *Document) FireEvent(ref int, typ string, detail any) error {
	n, ok := d.nodes[ref]
	if !ok {
		return xerrors.New("E243").WithDetailf("ref %d, event %q", ref, typ)
	}
	return n.Dispatch(typ, detail)
}

func (d *Document) emit(c Command) {
	if d.closed || d.failed {
		return
	}
	first := len(d.pending) == 0
	d.pending = append(d.pending, c)
	if first && d.created && d.onPending != nil && c.Op != OpUpdateFinish {
		d.onPending()
	}
}

func (d *Document) commit() error {
	if len(d.pending) == 0 {
		return nil
	}
	cmds := d.pending
	d.pending = nil
	if d.observer != nil {
		d.observer.CommandsCommitted(d.id, cmds)
	}
	if err := d.sink.Send(d.id, cmds); err != nil {
		d.failed = true
		d.logger.Error("command sink failed", "doc", d.id, "error", err)
		return xerrors.New("E242").WithDetailf("doc %s", d.id).Wrap(err)
	}
	return nil
}

func (d *Document) forget(n *Node) {
	delete(d.nodes, n.ref)
	for _, c := range n.children {
		d.forget(c)
	}
}
