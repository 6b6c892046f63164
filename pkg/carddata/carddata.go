// Package carddata implements the card data profile: a fixed schema of optional elements
// addressed by private tags 9F01 to 9F48, serialized as one BER-TLV stream.
//
// Encoding walks the slots in ascending tag order and omits absent slots, so the byte
// stream, and the SHA-1 digest naming a saved profile, only depend on the element set.
// Decoding dispatches on the tag alone and ignores tags outside the schema.
package carddata

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gregLibert/piv-reader/pkg/tlv"
)

// FileExt is the extension of a saved profile.
const FileExt = ".ber"

// CardData is the profile assembled by one card read.
type CardData struct {
	elements map[Tag]Element
}

// New returns an empty profile.
func New() *CardData {
	return &CardData{elements: make(map[Tag]Element)}
}

// Get returns the element held by a slot.
func (c *CardData) Get(tag Tag) (Element, bool) {
	e, ok := c.elements[tag]
	return e, ok
}

// Set stores an element in a slot. The element kind must match the slot; key type slots
// are written through their key and cannot be set directly.
func (c *CardData) Set(tag Tag, e Element) error {
	if !tag.Defined() {
		return fmt.Errorf("carddata: slot %s is not defined", tag)
	}
	if e == nil {
		delete(c.elements, tag)
		return nil
	}
	if tag.Kind() != e.kind() {
		return fmt.Errorf("carddata: slot %s (%s) holds %s elements, got %s", tag, tag.Name(), tag.Kind(), e.kind())
	}
	c.elements[tag] = e
	return nil
}

// Delete empties a slot.
func (c *CardData) Delete(tag Tag) {
	delete(c.elements, tag)
}

// Tags returns the populated slots in ascending order.
func (c *CardData) Tags() []Tag {
	tags := make([]Tag, 0, len(c.elements))
	for t := range c.elements {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Len returns the number of populated slots.
func (c *CardData) Len() int {
	return len(c.elements)
}

// Encode serializes the populated slots in ascending tag order. A key slot with a
// companion key type slot is preceded by the key type marker.
func (c *CardData) Encode() []byte {
	var records []tlv.Record
	for _, tag := range c.Tags() {
		e := c.elements[tag]
		if k, ok := e.(*Key); ok && tag.slot().keyType != 0 {
			records = append(records, tlv.EncodeBER(tag.slot().keyType.WireTag(), k.Type.Marker()))
		}
		records = append(records, tlv.EncodeBER(tag.WireTag(), e.Bytes()))
	}
	return tlv.Join(records...)
}

// Decode rebuilds a profile from its serialized form.
//
// Certificate-paired keys take their type from the certificate slot decoded earlier in
// the same stream; a key met before its certificate, or paired with an unsupported
// public key, stays KeyTypeUnknown with its raw bytes kept.
func Decode(data []byte) (*CardData, error) {
	records, err := tlv.DecodeBER(data)
	if err != nil {
		return nil, fmt.Errorf("carddata: %w", err)
	}

	c := New()
	markers := make(map[Tag][]byte)
	for _, r := range records {
		if len(r.Tag) != 2 || r.Tag[0] != wireTagClass {
			continue
		}
		tag := Tag(r.Tag[1])
		s := tag.slot()

		switch s.kind {
		case KindBytes:
			c.elements[tag] = Bytes(r.Value)
		case KindTemplate:
			c.elements[tag] = NewDataTemplate(r.Value)
		case KindKeyType:
			markers[tag] = r.Value
		case KindKey:
			c.elements[tag] = NewKey(c.resolveKeyType(s, markers, r.Value), r.Value)
		}
	}
	return c, nil
}

func (c *CardData) resolveKeyType(s slot, markers map[Tag][]byte, raw []byte) KeyType {
	switch {
	case s.keyType != 0:
		return keyTypeFromMarker(markers[s.keyType], raw)
	case s.curveFromKey:
		return keyTypeFromPKCS8(raw)
	case s.cert != 0:
		tmpl, ok := c.elements[s.cert].(*DataTemplate)
		if !ok {
			return KeyTypeUnknown
		}
		cert, err := tmpl.Certificate()
		if err != nil {
			return KeyTypeUnknown
		}
		return keyTypeFromPublic(cert.PublicKey)
	}
	return KeyTypeUnknown
}

// Unresolved lists the key slots whose type could not be determined.
func (c *CardData) Unresolved() []Tag {
	var out []Tag
	for _, t := range c.Tags() {
		if k, ok := c.elements[t].(*Key); ok && k.Unresolved() {
			out = append(out, t)
		}
	}
	return out
}

// Digest returns the SHA-1 of the encoded profile. It identifies a profile and
// is not a security control.
func (c *CardData) Digest() [sha1.Size]byte {
	return sha1.Sum(c.Encode())
}

// DigestString returns the digest as upper-case hex.
func (c *CardData) DigestString() string {
	d := c.Digest()
	return strings.ToUpper(hex.EncodeToString(d[:]))
}

// FileName returns the name a saved profile gets: <digest>.ber.
func (c *CardData) FileName() string {
	return c.DigestString() + FileExt
}

// Save writes the encoded profile into dir and returns the file path.
func (c *CardData) Save(dir string) (string, error) {
	path := filepath.Join(dir, c.FileName())
	if err := os.WriteFile(path, c.Encode(), 0o600); err != nil {
		return "", fmt.Errorf("carddata: save: %w", err)
	}
	return path, nil
}

// Load reads a profile written by Save.
func Load(path string) (*CardData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("carddata: load: %w", err)
	}
	return Decode(data)
}

// Describe lists the populated slots.
func (c *CardData) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== CARD DATA %s ===", c.DigestString())
	for _, t := range c.Tags() {
		e := c.elements[t]
		fmt.Fprintf(&sb, "\n    - %s %s", t, t.Name())
		if obj := t.Object(); obj != nil {
			fmt.Fprintf(&sb, " (%s)", obj)
		}
		fmt.Fprintf(&sb, ": %d bytes", len(e.Bytes()))
		if k, ok := e.(*Key); ok {
			fmt.Fprintf(&sb, " (%s)", k.Type)
		}
	}
	return sb.String()
}
