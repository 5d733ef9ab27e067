package dom

import "fmt"

// Op identifies a command.
type Op uint8

const (
	OpCreate Op = iota
	OpAddChild
	OpMoveChild
	OpRemoveChild
	OpUpdateAttr
	OpUpdateStyle
	OpAddEvent
	OpRemoveEvent
	OpCreateFinish
	OpUpdateFinish
)

// String returns the wire name of the op.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpAddChild:
		return "addChild"
	case OpMoveChild:
		return "moveChild"
	case OpRemoveChild:
		return "removeChild"
	case OpUpdateAttr:
		return "updateAttr"
	case OpUpdateStyle:
		return "updateStyle"
	case OpAddEvent:
		return "addEvent"
	case OpRemoveEvent:
		return "removeEvent"
	case OpCreateFinish:
		return "createFinish"
	case OpUpdateFinish:
		return "updateFinish"
	default:
		return fmt.Sprintf("Op(%d)", op)
	}
}

// Command is one tree mutation for the host. Fields not used by an op are
// left zero:
//
//	create       Ref, Type, Attr, Style, Events
//	addChild     Parent, Ref, Index
//	moveChild    Parent, Ref, Index
//	removeChild  Ref
//	updateAttr   Ref, Key, Value
//	updateStyle  Ref, Key, Value
//	addEvent     Ref, Key
//	removeEvent  Ref, Key
type Command struct {
	Op     Op
	Ref    int
	Parent int
	Index  int
	Type   string
	Key    string
	Value  any
	Attr   map[string]any
	Style  map[string]any
	Events []string
}

// String formats the command for logs and the CLI dump.
func (c Command) String() string {
	switch c.Op {
	case OpCreate:
		return fmt.Sprintf("create #%d <%s> attr=%v style=%v events=%v", c.Ref, c.Type, c.Attr, c.Style, c.Events)
	case OpAddChild, OpMoveChild:
		return fmt.Sprintf("%s #%d -> #%d[%d]", c.Op, c.Ref, c.Parent, c.Index)
	case OpRemoveChild:
		return fmt.Sprintf("removeChild #%d", c.Ref)
	case OpUpdateAttr, OpUpdateStyle:
		return fmt.Sprintf("%s #%d %s=%v", c.Op, c.Ref, c.Key, c.Value)
	case OpAddEvent, OpRemoveEvent:
		return fmt.Sprintf("%s #%d %s", c.Op, c.Ref, c.Key)
	default:
		return c.Op.String()
	}
}

// Sink receives committed command batches.
type Sink interface {
	Send(docID string, cmds []Command) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(docID string, cmds []Command) error

// Send implements Sink.
func (f SinkFunc) Send(docID string, cmds []Command) error {
	return f(docID, cmds)
}

// Recorder is a Sink that keeps every batch. It is used by tests and the
// CLI render command.
type Recorder struct {
	Batches [][]Command
}

// Send implements Sink.
func (r *Recorder) Send(_ string, cmds []Command) error {
	r.Batches = append(r.Batches, cmds)
	return nil
}

// All returns every recorded command in order.
func (r *Recorder) All() []Command {
	var out []Command
	for _, b := range r.Batches {
		out = append(out, b...)
	}
	return out
}

// Last returns the most recent batch.
func (r *Recorder) Last() []Command {
	if len(r.Batches) == 0 {
		return nil
	}
	return r.Batches[len(r.Batches)-1]
}

// Reset forgets recorded batches.
func (r *Recorder) Reset() {
	r.Batches = nil
}
