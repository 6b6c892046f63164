package carddata_test

import (
	"bytes"
	"crypto/x509"
	"errors"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/piv-reader/pkg/carddata"
	"github.com/gregLibert/piv-reader/pkg/piv"
	"github.com/gregLibert/piv-reader/pkg/piv/pivtest"
	"github.com/gregLibert/piv-reader/pkg/tlv"
)

// elementFor builds a plausible element for any defined slot.
func elementFor(tag carddata.Tag, value []byte) carddata.Element {
	switch tag.Kind() {
	case carddata.KindTemplate:
		return carddata.NewDataTemplate(value)
	case carddata.KindKey:
		return carddata.NewKey(carddata.KeyTypeAES, value)
	}
	return carddata.Bytes(value)
}

func definedTags() []carddata.Tag {
	var tags []carddata.Tag
	for t := carddata.Tag(0x01); t <= carddata.TagPoPSignature; t++ {
		if t.Defined() && t.Kind() != carddata.KindKeyType {
			tags = append(tags, t)
		}
	}
	return tags
}

func TestEncode_Empty(t *testing.T) {
	if got := carddata.New().Encode(); len(got) != 0 {
		t.Errorf("Encode() of an empty profile = %X, want no bytes", got)
	}
}

func TestRoundTrip_Subsets(t *testing.T) {
	all := definedTags()
	if len(all) != 70 {
		t.Fatalf("schema holds %d element slots, want 70", len(all))
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		c := carddata.New()
		want := map[carddata.Tag][]byte{}
		for _, tag := range all {
			if rng.Intn(3) != 0 {
				continue
			}
			value := make([]byte, rng.Intn(300)+1)
			rng.Read(value)
			if err := c.Set(tag, elementFor(tag, value)); err != nil {
				t.Fatalf("Set(%s) error: %v", tag, err)
			}
			want[tag] = value
		}

		got, err := carddata.Decode(c.Encode())
		if err != nil {
			t.Fatalf("Decode() error: %v", err)
		}
		if got.Len() != len(want) {
			t.Errorf("decoded %d slots, want %d", got.Len(), len(want))
		}
		for _, tag := range all {
			e, ok := got.Get(tag)
			value, populated := want[tag]
			if ok != populated {
				t.Errorf("slot %s present=%v, want %v", tag, ok, populated)
				continue
			}
			if ok && !bytes.Equal(e.Bytes(), value) {
				t.Errorf("slot %s = %X, want %X", tag, e.Bytes(), value)
			}
		}
	}
}

func TestEncode_OrderAndCompanionType(t *testing.T) {
	c := carddata.New()
	c.SetPoP(tlv.Hex("AA"), tlv.Hex("BB"))
	c.SetHistoricalBytes(tlv.Hex("80 31 C0"))
	if err := c.Set(carddata.TagCardAuthSymKey, carddata.NewKey(carddata.KeyTypeAES, tlv.Hex("0102"))); err != nil {
		t.Fatal(err)
	}

	want := tlv.Hex(
		"9F01 03 8031C0",
		"9F10 04 00000001", // key type precedes its key
		"9F11 02 0102",
		"9F47 01 AA",
		"9F48 01 BB",
	)
	if got := c.Encode(); !bytes.Equal(got, want) {
		t.Errorf("Encode() = %X\nwant       %X", got, want)
	}
}

func TestDecode_OrderIndependentAndForwardCompatible(t *testing.T) {
	data := tlv.Hex(
		"9F48 01 BB",
		"9F7F 02 FFFF", // reserved
		"5F2F 01 00",   // foreign
		"9F01 01 80",
		"9F47 01 AA",
	)
	c, err := carddata.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if diff := cmp.Diff([]carddata.Tag{carddata.TagHistoricalBytes, carddata.TagPoPNonce, carddata.TagPoPSignature}, c.Tags()); diff != "" {
		t.Errorf("Tags() mismatch (-want +got):\n%s", diff)
	}
	if !bytes.Equal(c.PoPSignature(), tlv.Hex("BB")) {
		t.Errorf("PoPSignature() = %X", c.PoPSignature())
	}
}

func TestDecode_Malformed(t *testing.T) {
	_, err := carddata.Decode(tlv.Hex("9F08 10 5300"))
	if !errors.Is(err, tlv.ErrMalformed) {
		t.Errorf("Decode() error = %v, want ErrMalformed", err)
	}
}

func TestDigest(t *testing.T) {
	a := carddata.New()
	a.SetCHUID(tlv.Hex("53 03 300100"))
	a.SetCSN(tlv.Hex("04A1B2C3"))

	b := carddata.New()
	b.SetCSN(tlv.Hex("04A1B2C3"))
	b.SetCHUID(tlv.Hex("53 03 300100"))

	if a.Digest() != b.Digest() {
		t.Error("identical profiles produce different digests")
	}

	b.SetCSN(tlv.Hex("04A1B2C4"))
	if a.Digest() == b.Digest() {
		t.Error("changing a slot does not change the digest")
	}

	empty := carddata.New()
	if got := empty.DigestString(); got != "DA39A3EE5E6B4B0D3255BFEF95601890AFD80709" {
		t.Errorf("digest of an empty profile = %s", got)
	}
	if !strings.HasSuffix(a.FileName(), ".ber") || len(a.FileName()) != 44 {
		t.Errorf("FileName() = %s", a.FileName())
	}
}

func TestDecode_KeyResolution(t *testing.T) {
	rsaKey := pivtest.NewKey(t, pivtest.RSA2048)
	ecKey := pivtest.NewKey(t, pivtest.P384)
	now := time.Now()

	rsaCert := pivtest.NewCertificate(t, rsaKey, now)
	ecCert := pivtest.NewCertificate(t, ecKey, now)

	rsaPKCS8, err := x509.MarshalPKCS8PrivateKey(rsaKey)
	if err != nil {
		t.Fatal(err)
	}
	ecPKCS8, err := x509.MarshalPKCS8PrivateKey(ecKey)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("Certificate before key", func(t *testing.T) {
		c := carddata.New()
		c.SetCardAuthCertificate(pivtest.CertificateObject(t, rsaCert.Raw, false))
		_ = c.Set(carddata.TagCardAuthKey, carddata.NewKey(carddata.KeyTypeUnknown, rsaPKCS8))
		_ = c.Set(carddata.TagDigSigCert, carddata.NewDataTemplate(pivtest.CertificateObject(t, ecCert.Raw, true)))
		_ = c.Set(carddata.TagDigSigKey, carddata.NewKey(carddata.KeyTypeUnknown, ecPKCS8))

		got, err := carddata.Decode(c.Encode())
		if err != nil {
			t.Fatalf("Decode() error: %v", err)
		}
		if k := got.CardAuthKey(); k == nil || k.Type != carddata.KeyTypeRSA {
			t.Errorf("card auth key = %+v, want RSA", k)
		}
		if k := got.KeyAt(carddata.TagDigSigKey); k == nil || k.Type != carddata.KeyTypeECCP384 {
			t.Errorf("signature key = %+v, want ECC P-384", k)
		}
		if len(got.Unresolved()) != 0 {
			t.Errorf("Unresolved() = %v", got.Unresolved())
		}
		priv, err := got.CardAuthKey().PrivateKey()
		if err != nil || priv == nil {
			t.Errorf("PrivateKey() = %v, %v", priv, err)
		}
	})

	t.Run("Key before certificate", func(t *testing.T) {
		data := tlv.Join(
			tlv.EncodeBER([]byte{0x9F, 0x0F}, rsaPKCS8),
			tlv.EncodeBER([]byte{0x9F, 0x0E}, pivtest.CertificateObject(t, rsaCert.Raw, false)),
		)
		got, err := carddata.Decode(data)
		if err != nil {
			t.Fatalf("Decode() error: %v", err)
		}
		k := got.CardAuthKey()
		if k == nil || !k.Unresolved() || !bytes.Equal(k.Raw, rsaPKCS8) {
			t.Errorf("card auth key = %+v, want unresolved with raw bytes kept", k)
		}
		if diff := cmp.Diff([]carddata.Tag{carddata.TagCardAuthKey}, got.Unresolved()); diff != "" {
			t.Errorf("Unresolved() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Companion markers", func(t *testing.T) {
		data := tlv.Hex(
			"9F05 04 00000000", "9F06 02 0A0B",
			"9F10 04 00000001", "9F11 02 0C0D",
		)
		got, err := carddata.Decode(data)
		if err != nil {
			t.Fatalf("Decode() error: %v", err)
		}
		if got.AdminKey().Type != carddata.KeyType3DES || got.CardAuthSymmetricKey().Type != carddata.KeyTypeAES {
			t.Errorf("admin=%s cak=%s", got.AdminKey().Type, got.CardAuthSymmetricKey().Type)
		}
		if _, err := got.AdminKey().PrivateKey(); !errors.Is(err, carddata.ErrSymmetricKey) {
			t.Errorf("PrivateKey() error = %v", err)
		}
		if _, ok := got.Get(carddata.TagAdminKeyType); ok {
			t.Error("key type markers must not be stored as elements")
		}
	})

	t.Run("Secure messaging key", func(t *testing.T) {
		got, err := carddata.Decode(tlv.EncodeBER([]byte{0x9F, 0x45}, ecPKCS8).Raw)
		if err != nil {
			t.Fatalf("Decode() error: %v", err)
		}
		if k := got.KeyAt(carddata.TagSMKey); k == nil || k.Type != carddata.KeyTypeECCP384 {
			t.Errorf("secure messaging key = %+v", k)
		}
	})
}

func TestSet_Validation(t *testing.T) {
	c := carddata.New()
	if err := c.Set(carddata.TagCHUID, carddata.Bytes{0x01}); err == nil {
		t.Error("expected an error for a bytes element in a template slot")
	}
	if err := c.Set(carddata.TagAdminKeyType, carddata.Bytes{0x01}); err == nil {
		t.Error("expected an error for a key type slot")
	}
	if err := c.Set(carddata.Tag(0x50), carddata.Bytes{0x01}); err == nil {
		t.Error("expected an error for a reserved slot")
	}
	if err := c.Set(carddata.TagCSN, carddata.Bytes{0x01}); err != nil {
		t.Errorf("Set() error: %v", err)
	}
	if err := c.Set(carddata.TagCSN, nil); err != nil || c.Len() != 0 {
		t.Errorf("setting nil should empty the slot: %v, len %d", err, c.Len())
	}
}

func TestRetiredTags(t *testing.T) {
	cert, _ := carddata.RetiredCertTag(1)
	key, _ := carddata.RetiredKeyTag(20)
	if cert != 0x1A || key != 0x41 {
		t.Errorf("retired tags = %02X..%02X", byte(cert), byte(key))
	}
	if _, err := carddata.RetiredCertTag(0); err == nil {
		t.Error("expected an error for slot 0")
	}
	if carddata.Tag(0x1B).Name() != "Retired KM Key 01" {
		t.Errorf("Name() = %s", carddata.Tag(0x1B).Name())
	}
	if got := carddata.Tag(0x41 - 1).Object().String(); got != "5FC120" {
		t.Errorf("Object() of retired certificate 20 = %s, want 5FC120", got)
	}
	if carddata.Tag(0x1B).Object() != nil || carddata.TagCSN.Object() != nil {
		t.Error("key and bytes slots mirror no card object")
	}

	c := carddata.New()
	_ = c.Set(carddata.Tag(0x1C), carddata.NewDataTemplate(tlv.Hex("53 00")))
	if c.RetiredCertificate(2) == nil || c.RetiredKey(2) != nil {
		t.Error("retired accessors do not map onto the slot pairs")
	}
}

func TestSaveLoad(t *testing.T) {
	c := carddata.New()
	c.SetCHUID(pivtest.CHUIDObject(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)))
	c.SetPoP(bytes.Repeat([]byte{0x11}, 64), tlv.Hex("3006020101020101"))

	dir := t.TempDir()
	path, err := c.Save(dir)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if filepath.Base(path) != c.FileName() {
		t.Errorf("saved as %s, want %s", filepath.Base(path), c.FileName())
	}

	loaded, err := carddata.Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.DigestString() != c.DigestString() {
		t.Error("loaded profile digest differs")
	}
	chuid, err := loaded.CHUID().CHUID()
	if err != nil {
		t.Fatalf("CHUID() error: %v", err)
	}
	if f, _ := chuid.ParsedFASCN(); f == nil || f.AgencyCode != "9999" {
		t.Errorf("FASC-N = %v", f)
	}

	if _, err := carddata.Load(filepath.Join(dir, "missing.ber")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestDescribe(t *testing.T) {
	c := carddata.New()
	c.SetCSN(tlv.Hex("04A1B2C3"))
	c.SetCHUID(tlv.Hex("53 03 30 01 00"))
	_ = c.Set(carddata.TagCardAuthSymKey, carddata.NewKey(carddata.KeyTypeAES, tlv.Hex("00112233")))

	lines := strings.Split(c.Describe(), "\n")
	want := []string{
		"    - 9F03 Card Serial Number / UID: 4 bytes",
		"    - 9F08 Card Holder Unique Identifier (5FC102): 5 bytes",
		"    - 9F11 Card Authentication Symmetric Key: 4 bytes (AES)",
	}
	if diff := cmp.Diff(want, lines[1:]); diff != "" {
		t.Errorf("Describe() mismatch (-want +got):\n%s", diff)
	}
}

func TestDescribeRetired(t *testing.T) {
	c := carddata.New()
	_ = c.Set(carddata.TagKeyHistory, carddata.NewDataTemplate(tlv.Hex("53 08", "C1 01 01", "C2 01 01", "FE 00")))
	_ = c.Set(carddata.Tag(0x1A), carddata.NewDataTemplate(tlv.Hex("53 00")))

	kh, err := c.KeyHistory().KeyHistory()
	if err != nil {
		t.Fatalf("KeyHistory() error: %v", err)
	}
	lines := strings.Split(c.DescribeRetired(kh), "\n")
	want := []string{
		"=== RETIRED KEY MANAGEMENT ===",
		"    - Retired 01: 5FC10D, on-card certificate, certificate held, key absent",
		"    - Retired 02: 5FC10E, off-card certificate, certificate absent, key absent",
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Errorf("DescribeRetired() mismatch (-want +got):\n%s", diff)
	}

	if got := c.DescribeRetired(&piv.KeyHistory{}); !strings.HasSuffix(got, "- None") {
		t.Errorf("DescribeRetired() without retired keys = %q", got)
	}
}

func TestDataTemplate_OptionalObjects(t *testing.T) {
	discovery := carddata.NewDataTemplate(tlv.Hex("7E 12", "4F 0B A0000003080000100001 00", "5F2F 02 4010"))
	d, err := discovery.Discovery()
	if err != nil {
		t.Fatalf("Discovery() error: %v", err)
	}
	if p, err := d.Policy(); err != nil || !p.PIVPIN {
		t.Errorf("Policy() = %+v, %v", p, err)
	}

	printed := carddata.NewDataTemplate(tlv.Hex("53 0A", "01 08 4A6F686E20446F65"))
	p, err := printed.PrintedInformation()
	if err != nil || p.Name != "John Doe" {
		t.Errorf("PrintedInformation() = %+v, %v", p, err)
	}

	if _, err := printed.Discovery(); err == nil {
		t.Error("Discovery() of a '53' template should fail")
	}
}
