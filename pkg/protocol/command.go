package protocol

import (
	"fmt"

	"github.com/vango-dev/xvm/pkg/dom"
)

// Field mask bits of an encoded command.
const (
	fieldRef uint64 = 1 << iota
	fieldParent
	fieldIndex
	fieldType
	fieldKey
	fieldValue
	fieldAttr
	fieldStyle
	fieldEvents
)

// maxOp is the highest op a decoder accepts.
const maxOp = dom.OpUpdateFinish

// EncodeCommands encodes one committed batch of a document.
func EncodeCommands(docID string, cmds []dom.Command) []byte {
	e := NewEncoder()
	EncodeCommandsTo(e, docID, cmds)
	return e.Bytes()
}

// EncodeCommandsTo encodes a batch using the provided encoder.
func EncodeCommandsTo(e *Encoder, docID string, cmds []dom.Command) {
	e.WriteString(docID)
	e.WriteUvarint(uint64(len(cmds)))
	for i := range cmds {
		encodeCommand(e, &cmds[i])
	}
}

func encodeCommand(e *Encoder, c *dom.Command) {
	var mask uint64
	if c.Ref != 0 {
		mask |= fieldRef
	}
	if c.Parent != 0 {
		mask |= fieldParent
	}
	if c.Index != 0 {
		mask |= fieldIndex
	}
	if c.Type != "" {
		mask |= fieldType
	}
	if c.Key != "" {
		mask |= fieldKey
	}
	if c.Value != nil {
		mask |= fieldValue
	}
	if len(c.Attr) > 0 {
		mask |= fieldAttr
	}
	if len(c.Style) > 0 {
		mask |= fieldStyle
	}
	if len(c.Events) > 0 {
		mask |= fieldEvents
	}

	e.WriteByte(byte(c.Op))
	e.WriteUvarint(mask)
	if mask&fieldRef != 0 {
		e.WriteSvarint(int64(c.Ref))
	}
	if mask&fieldParent != 0 {
		e.WriteSvarint(int64(c.Parent))
	}
	if mask&fieldIndex != 0 {
		e.WriteSvarint(int64(c.Index))
	}
	if mask&fieldType != 0 {
		e.WriteString(c.Type)
	}
	if mask&fieldKey != 0 {
		e.WriteString(c.Key)
	}
	if mask&fieldValue != 0 {
		e.WriteValue(c.Value)
	}
	if mask&fieldAttr != 0 {
		e.WriteMap(c.Attr)
	}
	if mask&fieldStyle != 0 {
		e.WriteMap(c.Style)
	}
	if mask&fieldEvents != 0 {
		e.WriteUvarint(uint64(len(c.Events)))
		for _, ev := range c.Events {
			e.WriteString(ev)
		}
	}
}

// DecodeCommands decodes a batch.
func DecodeCommands(data []byte) (string, []dom.Command, error) {
	return DecodeCommandsFrom(NewDecoder(data))
}

// DecodeCommandsFrom decodes a batch from a decoder.
func DecodeCommandsFrom(d *Decoder) (string, []dom.Command, error) {
	docID, err := d.ReadString()
	if err != nil {
		return "", nil, err
	}
	n, err := d.ReadCount()
	if err != nil {
		return "", nil, err
	}
	cmds := make([]dom.Command, n)
	for i := range cmds {
		if err := decodeCommand(d, &cmds[i]); err != nil {
			return "", nil, fmt.Errorf("protocol: command %d: %w", i, err)
		}
	}
	return docID, cmds, nil
}

func decodeCommand(d *Decoder, c *dom.Command) error {
	op, err := d.ReadByte()
	if err != nil {
		return err
	}
	if dom.Op(op) > maxOp {
		return fmt.Errorf("unknown op %d", op)
	}
	c.Op = dom.Op(op)

	mask, err := d.ReadUvarint()
	if err != nil {
		return err
	}
	readInt := func(bit uint64, dst *int) error {
		if mask&bit == 0 {
			return nil
		}
		v, err := d.ReadSvarint()
		*dst = int(v)
		return err
	}
	readString := func(bit uint64, dst *string) error {
		if mask&bit == 0 {
			return nil
		}
		v, err := d.ReadString()
		*dst = v
		return err
	}
	readMap := func(bit uint64, dst *map[string]any) error {
		if mask&bit == 0 {
			return nil
		}
		v, err := d.ReadMap()
		*dst = v
		return err
	}

	if err := readInt(fieldRef, &c.Ref); err != nil {
		return err
	}
	if err := readInt(fieldParent, &c.Parent); err != nil {
		return err
	}
	if err := readInt(fieldIndex, &c.Index); err != nil {
		return err
	}
	if err := readString(fieldType, &c.Type); err != nil {
		return err
	}
	if err := readString(fieldKey, &c.Key); err != nil {
		return err
	}
	if mask&fieldValue != 0 {
		if c.Value, err = d.ReadValue(); err != nil {
			return err
		}
	}
	if err := readMap(fieldAttr, &c.Attr); err != nil {
		return err
	}
	if err := readMap(fieldStyle, &c.Style); err != nil {
		return err
	}
	if mask&fieldEvents != 0 {
		n, err := d.ReadCount()
		if err != nil {
			return err
		}
		c.Events = make([]string, n)
		for i := range c.Events {
			if c.Events[i], err = d.ReadString(); err != nil {
				return err
			}
		}
	}
	return nil
}
