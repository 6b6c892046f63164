// Package tlv implements the TLV encodings met on a PIV card: Compact-TLV (historical bytes),
// BER-TLV records (GET DATA objects, card data profiles) and a struct-tag mapper that turns
// BER-TLV templates into Go structures.
//
// The mapper is driven by `tlv:"<hex tag>"` struct tags:
//
//	type Discovery struct {
//		AID    []byte `tlv:"4F"`
//		Policy []byte `tlv:"5F2F"`
//	}
//
// []byte fields receive the raw value, string fields the value as text, nested structs the
// decoded children, and a []bertlv.TLV field tagged `tlv:",unknown"` collects the rest.
package tlv

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// Unmarshaler allows custom types to implement their own TLV parsing logic.
type Unmarshaler interface {
	UnmarshalTLV(data []byte) error
}

// Unmarshal parses raw BER-TLV data and maps it into a target Go struct.
func Unmarshal(data []byte, target interface{}) error {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Errorf("bertlv decode failed: %w", err)
	}
	return UnmarshalFromPackets(packets, target)
}

// UnmarshalTemplate maps the children of the template identified by tag.
// data must start with that template (for instance 53 L ... or 7C L ...).
func UnmarshalTemplate(data []byte, tag uint, target interface{}) error {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Errorf("bertlv decode failed: %w", err)
	}

	want := fmt.Sprintf("%02X", tag)
	if len(packets) == 0 || !strings.EqualFold(packets[0].Tag, want) {
		return fmt.Errorf("expected template %s", want)
	}

	outer := packets[0]
	if len(outer.TLVs) > 0 {
		return UnmarshalFromPackets(outer.TLVs, target)
	}
	return Unmarshal(outer.Value, target)
}

// UnmarshalFromPackets maps a slice of pre-decoded bertlv.TLV objects to a target struct.
// A tag met several times fills a slice field element by element; for scalar fields the
// last occurrence wins.
func UnmarshalFromPackets(packets []bertlv.TLV, target interface{}) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("target must be a non-nil pointer")
	}
	v = v.Elem()
	t := v.Type()

	consumed := make(map[int]bool)

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		tagConfig := fieldType.Tag.Get("tlv")

		if tagConfig == "" || isUnknownField(fieldType) {
			continue
		}

		tagHex := strings.ToUpper(strings.Split(tagConfig, ",")[0])

		for idx, packet := range packets {
			if strings.ToUpper(packet.Tag) != tagHex {
				continue
			}
			if err := mapPacketToField(packet, field); err != nil {
				return fmt.Errorf("field %s (%s): %w", fieldType.Name, tagHex, err)
			}
			consumed[idx] = true
		}
	}

	return handleUnknownFields(v, t, packets, consumed)
}

func mapPacketToField(packet bertlv.TLV, field reflect.Value) error {
	// Slice of non-byte elements: append one element per occurrence.
	if field.Kind() == reflect.Slice && !isByteSlice(field) {
		elem := reflect.New(field.Type().Elem()).Elem()
		if err := decodeToValue(packet, elem); err != nil {
			return err
		}
		field.Set(reflect.Append(field, elem))
		return nil
	}

	return decodeToValue(packet, field)
}

func decodeToValue(packet bertlv.TLV, field reflect.Value) error {
	if field.CanAddr() {
		if u, ok := field.Addr().Interface().(Unmarshaler); ok {
			return u.UnmarshalTLV(packetValue(packet))
		}
	}

	switch {
	case isByteSlice(field):
		field.SetBytes(packetValue(packet))
	case field.Kind() == reflect.String:
		field.SetString(string(packetValue(packet)))
	case isUnsigned(field):
		var n uint64
		for _, b := range packetValue(packet) {
			n = n<<8 | uint64(b)
		}
		field.SetUint(n)
	case isStructOrPtrToStruct(field):
		target := targetField(field)
		if len(packet.TLVs) > 0 {
			return UnmarshalFromPackets(packet.TLVs, target.Interface())
		}
		return Unmarshal(packet.Value, target.Interface())
	}

	return nil
}

func handleUnknownFields(v reflect.Value, t reflect.Type, packets []bertlv.TLV, consumed map[int]bool) error {
	for i := 0; i < v.NumField(); i++ {
		if !isUnknownField(t.Field(i)) {
			continue
		}

		var leftovers []bertlv.TLV
		for idx, packet := range packets {
			if !consumed[idx] {
				leftovers = append(leftovers, packet)
			}
		}
		if len(leftovers) > 0 && v.Field(i).CanSet() {
			v.Field(i).Set(reflect.ValueOf(leftovers))
		}
		return nil
	}
	return nil
}

func isUnknownField(f reflect.StructField) bool {
	return f.Tag.Get("tlv") == ",unknown" || f.Name == "Unknown"
}

// packetValue returns the value bytes of a packet, re-encoding children of constructed tags.
func packetValue(p bertlv.TLV) []byte {
	if len(p.TLVs) > 0 {
		if enc, err := bertlv.Encode(p.TLVs); err == nil {
			return enc
		}
	}
	return p.Value
}

func isByteSlice(v reflect.Value) bool {
	return v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8
}

func isUnsigned(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isStructOrPtrToStruct(v reflect.Value) bool {
	if v.Kind() == reflect.Struct {
		return true
	}
	return v.Kind() == reflect.Ptr && v.Type().Elem().Kind() == reflect.Struct
}

func targetField(field reflect.Value) reflect.Value {
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			field.Set(reflect.New(field.Type().Elem()))
		}
		return field
	}
	return field.Addr()
}
