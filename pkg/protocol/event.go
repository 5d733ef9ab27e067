package protocol

// Event is an element event reported by the host.
type Event struct {
	DocID  string
	Ref    int
	Type   string
	Detail any
}

// EncodeEvent encodes an event.
func EncodeEvent(ev *Event) []byte {
	e := NewEncoder()
	EncodeEventTo(e, ev)
	return e.Bytes()
}

// EncodeEventTo encodes an event using the provided encoder.
func EncodeEventTo(e *Encoder, ev *Event) {
	e.WriteString(ev.DocID)
	e.WriteSvarint(int64(ev.Ref))
	e.WriteString(ev.Type)
	e.WriteValue(ev.Detail)
}

// DecodeEvent decodes an event.
func DecodeEvent(data []byte) (*Event, error) {
	d := NewDecoder(data)
	docID, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	ref, err := d.ReadSvarint()
	if err != nil {
		return nil, err
	}
	typ, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	detail, err := d.ReadValue()
	if err != nil {
		return nil, err
	}
	return &Event{DocID: docID, Ref: int(ref), Type: typ, Detail: detail}, nil
}
