package protocol

import (
	"fmt"
	"reflect"
	"sort"
)

// Value tags.
const (
	tagNull   byte = 0x00
	tagFalse  byte = 0x01
	tagTrue   byte = 0x02
	tagInt    byte = 0x03
	tagFloat  byte = 0x04
	tagString byte = 0x05
	tagList   byte = 0x06
	tagMap    byte = 0x07
)

// WriteValue appends a tagged value. Integers of every width are written
// as tagInt, other numbers as tagFloat, string-keyed maps as tagMap with
// sorted keys, and slices as tagList. Anything else is written as its
// fmt.Sprint string.
func (e *Encoder) WriteValue(v any) {
	switch c := v.(type) {
	case nil:
		e.WriteByte(tagNull)
	case bool:
		if c {
			e.WriteByte(tagTrue)
		} else {
			e.WriteByte(tagFalse)
		}
	case int:
		e.writeInt(int64(c))
	case int8:
		e.writeInt(int64(c))
	case int16:
		e.writeInt(int64(c))
	case int32:
		e.writeInt(int64(c))
	case int64:
		e.writeInt(c)
	case uint:
		e.writeInt(int64(c))
	case uint8:
		e.writeInt(int64(c))
	case uint16:
		e.writeInt(int64(c))
	case uint32:
		e.writeInt(int64(c))
	case uint64:
		e.writeInt(int64(c))
	case float32:
		e.WriteByte(tagFloat)
		e.WriteFloat64(float64(c))
	case float64:
		e.WriteByte(tagFloat)
		e.WriteFloat64(c)
	case string:
		e.WriteByte(tagString)
		e.WriteString(c)
	case []any:
		e.WriteByte(tagList)
		e.WriteUvarint(uint64(len(c)))
		for _, item := range c {
			e.WriteValue(item)
		}
	case []string:
		e.WriteByte(tagList)
		e.WriteUvarint(uint64(len(c)))
		for _, item := range c {
			e.WriteByte(tagString)
			e.WriteString(item)
		}
	case map[string]any:
		e.WriteMap(c)
	default:
		e.writeReflect(v)
	}
}

// WriteMap appends a tagged map with keys in sorted order.
func (e *Encoder) WriteMap(m map[string]any) {
	e.WriteByte(tagMap)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.WriteUvarint(uint64(len(keys)))
	for _, k := range keys {
		e.WriteString(k)
		e.WriteValue(m[k])
	}
}

func (e *Encoder) writeInt(v int64) {
	e.WriteByte(tagInt)
	e.WriteSvarint(v)
}

func (e *Encoder) writeReflect(v any) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		e.WriteValue(items)
		return
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			m := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				m[iter.Key().String()] = iter.Value().Interface()
			}
			e.WriteMap(m)
			return
		}
	case reflect.Pointer:
		if rv.IsNil() {
			e.WriteByte(tagNull)
			return
		}
	}
	e.WriteByte(tagString)
	e.WriteString(fmt.Sprint(v))
}

// ReadValue reads a tagged value. Integers decode as int, floats as
// float64, lists as []any and maps as map[string]any.
func (d *Decoder) ReadValue() (any, error) {
	return d.readValue(0)
}

func (d *Decoder) readValue(depth int) (any, error) {
	if depth > MaxValueDepth {
		return nil, ErrMaxDepthExceeded
	}
	tag, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagNull:
		return nil, nil
	case tagFalse:
		return false, nil
	case tagTrue:
		return true, nil
	case tagInt:
		v, err := d.ReadSvarint()
		return int(v), err
	case tagFloat:
		return d.ReadFloat64()
	case tagString:
		return d.ReadString()
	case tagList:
		n, err := d.ReadCount()
		if err != nil {
			return nil, err
		}
		out := make([]any, n)
		for i := range out {
			if out[i], err = d.readValue(depth + 1); err != nil {
				return nil, err
			}
		}
		return out, nil
	case tagMap:
		return d.readMap(depth)
	}
	return nil, fmt.Errorf("protocol: unknown value tag 0x%02x", tag)
}

// ReadMap reads a tagged map. A null decodes as a nil map.
func (d *Decoder) ReadMap() (map[string]any, error) {
	v, err := d.ReadValue()
	if err != nil {
		return nil, err
	}
	switch m := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return m, nil
	}
	return nil, fmt.Errorf("protocol: expected map, got %T", v)
}

func (d *Decoder) readMap(depth int) (map[string]any, error) {
	n, err := d.ReadCount()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, n)
	for i := 0; i < n; i++ {
		k, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		if out[k], err = d.readValue(depth + 1); err != nil {
			return nil, err
		}
	}
	return out, nil
}
