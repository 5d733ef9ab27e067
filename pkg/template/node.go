package template

// Kind is how the reconciler treats a node.
type Kind uint8

const (
	KindElement Kind = iota
	KindFragment
	KindSlot
	KindComponent
	KindBlock
	KindRichText
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFragment:
		return "fragment"
	case KindSlot:
		return "slot"
	case KindComponent:
		return "component"
	case KindBlock:
		return "block"
	case KindRichText:
		return "richtext"
	default:
		return "element"
	}
}

// AppendTree builds a node's subtree detached and attaches it in one
// piece.
const AppendTree = "tree"

// Node is one template node. Values typed any hold either a constant or
// an Expr.
type Node struct {
	// Type is the element or component type. Empty means a fragment.
	Type string

	// ID names the node for Instance.Element and EmitElement.
	ID any

	Attr map[string]any

	// Classes is a list of class names or an Expr yielding a list or a
	// space separated string.
	Classes any

	// Style is a declaration map (values constant or Expr) or an Expr
	// yielding a map.
	Style any

	// Events maps event types to method names or Handlers.
	Events map[string]any

	Repeat *Repeat

	// Shown is the conditional. Nil means unconditional.
	Shown any

	// Is selects the component type of a dynamic component node.
	Is any

	// Slot is the slot name content is passed into, or the name of a slot
	// outlet.
	Slot string

	Append string

	Directives []Directive

	Children []*Node
}

// Repeat describes repeated content.
type Repeat struct {
	// Exp yields a list or a count.
	Exp any

	// Key and Value name the index and item variables. They default to
	// $idx and $item.
	Key   string
	Value string

	// TrackBy is the item field used as identity. Empty means positional.
	TrackBy string
}

// Directive is a custom directive use.
type Directive struct {
	Name  string
	Value any
}

// Kind classifies the node.
func (n *Node) Kind() Kind {
	switch n.Type {
	case "":
		return KindFragment
	case "slot":
		return KindSlot
	case "component":
		return KindComponent
	case "block":
		return KindBlock
	case "richtext":
		return KindRichText
	}
	return KindElement
}

// Static reports whether the node renders unconditionally and once:
// neither repeated nor conditional.
func (n *Node) Static() bool {
	return n.Repeat == nil && n.Shown == nil
}
