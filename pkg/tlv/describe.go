package tlv

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"

	"github.com/moov-io/bertlv"
)

// WriteStructFields writes one report line per populated field of a tagged struct.
// Lines are joined without a trailing newline; a newline is prepended when sb already
// holds content.
func WriteStructFields(sb *strings.Builder, prefix string, s interface{}) {
	val := reflect.ValueOf(s)

	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return
		}
		val = val.Elem()
	}

	typ := val.Type()
	var lines []string

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.Uint8 {
			if line := formatByteSliceField(prefix, field, fieldType); line != "" {
				lines = append(lines, line)
			}
			continue
		}

		if field.Kind() == reflect.String && field.Len() > 0 {
			lines = append(lines, fmt.Sprintf("    - %s.%s: %q", prefix, fieldLabel(fieldType), MakeSafeASCII([]byte(field.String()))))
			continue
		}

		if isUnsigned(field) && field.Uint() != 0 {
			lines = append(lines, fmt.Sprintf("    - %s.%s: %X (Dec: %d)", prefix, fieldLabel(fieldType), field.Uint(), field.Uint()))
			continue
		}

		if field.Type() == reflect.TypeOf([]bertlv.TLV{}) {
			if unknownLines := formatUnknownField(prefix, field); len(unknownLines) > 0 {
				lines = append(lines, unknownLines...)
			}
			continue
		}
	}

	if len(lines) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(strings.Join(lines, "\n"))
	}
}

func formatByteSliceField(prefix string, field reflect.Value, fieldType reflect.StructField) string {
	if field.IsNil() || field.Len() == 0 {
		return ""
	}

	displayVal := formatByteValue(field.Bytes(), fieldType.Tag.Get("fmt"))
	return fmt.Sprintf("    - %s.%s: %s", prefix, fieldLabel(fieldType), displayVal)
}

func fieldLabel(f reflect.StructField) string {
	if tag := f.Tag.Get("tlv"); tag != "" && !strings.HasPrefix(tag, ",") {
		return fmt.Sprintf("%s (%s)", f.Name, tag)
	}
	return f.Name
}

func formatUnknownField(prefix string, field reflect.Value) []string {
	if field.IsNil() || field.Len() == 0 {
		return nil
	}

	var lines []string
	tlvs := field.Interface().([]bertlv.TLV)
	for _, t := range tlvs {
		valStr := strings.ToUpper(hex.EncodeToString(t.Value))
		lines = append(lines, fmt.Sprintf("    - %s.Unknown Tag %s: %s", prefix, t.Tag, valStr))
	}
	return lines
}

func formatByteValue(data []byte, format string) string {
	switch format {
	case "ascii":
		return fmt.Sprintf("%X (%q)", data, MakeSafeASCII(data))
	case "int":
		var integer int
		for _, b := range data {
			integer = (integer << 8) | int(b)
		}
		return fmt.Sprintf("%X (Dec: %d)", data, integer)
	default:
		return strings.ToUpper(hex.EncodeToString(data))
	}
}

// DescribeRecords renders BER-TLV records as an indented tree. Constructed records whose
// value decodes cleanly are expanded; anything else is shown as hex.
func DescribeRecords(records []Record) string {
	var sb strings.Builder
	writeRecords(&sb, records, 0)
	return strings.TrimRight(sb.String(), "\n")
}

func writeRecords(sb *strings.Builder, records []Record, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, r := range records {
		if r.IsConstructed() && r.Length > 0 {
			if children, err := r.Children(); err == nil {
				fmt.Fprintf(sb, "%s%X (%d)\n", indent, r.Tag, r.Length)
				writeRecords(sb, children, depth+1)
				continue
			}
		}
		fmt.Fprintf(sb, "%s%X (%d): %X\n", indent, r.Tag, r.Length, r.Value)
	}
}

// MakeSafeASCII replaces every non printable byte with a dot.
func MakeSafeASCII(data []byte) string {
	return strings.Map(func(r rune) rune {
		if r >= 32 && r <= 126 {
			return r
		}
		return '.'
	}, string(data))
}
