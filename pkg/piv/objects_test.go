package piv_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/piv-reader/pkg/piv"
	"github.com/gregLibert/piv-reader/pkg/tlv"
)

func TestParseApplicationProperty(t *testing.T) {
	data := tlv.Hex(
		"61 1B",
		"4F 06 000010000100", // PIX
		"79 07 4F05A000000308",
		"AC 08 800107 800111 0600",
	)

	got, err := piv.ParseApplicationProperty(data)
	if err != nil {
		t.Fatalf("ParseApplicationProperty() error: %v", err)
	}
	if !bytes.Equal(got.AID, tlv.Hex("000010000100")) {
		t.Errorf("AID = %X", got.AID)
	}
	if got.Authority == nil || !bytes.Equal(got.Authority.AID, tlv.Hex("A000000308")) {
		t.Errorf("Authority = %+v", got.Authority)
	}
	if diff := cmp.Diff([]string{"RSA-2048", "ECC P-256"}, got.Algorithms.Names()); diff != "" {
		t.Errorf("Algorithms mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(got.Describe(), "Algorithms: RSA-2048, ECC P-256") {
		t.Errorf("Describe():\n%s", got.Describe())
	}

	if _, err := piv.ParseApplicationProperty(nil); err == nil {
		t.Error("expected an error for empty data")
	}
	if _, err := piv.ParseApplicationProperty(tlv.Hex("6F 00")); err == nil {
		t.Error("expected an error for a foreign template")
	}
}

func TestDiscovery_Policy(t *testing.T) {
	d, err := piv.ParseDiscovery(tlv.Hex("7E 12", "4F 0B A0000003080000100001 00", "5F2F 02 4010"))
	if err != nil {
		t.Fatalf("ParseDiscovery() error: %v", err)
	}
	if !bytes.Equal(d.AID, piv.AID) {
		t.Errorf("AID = %X", d.AID)
	}

	got, err := d.Policy()
	if err != nil {
		t.Fatalf("Policy() error: %v", err)
	}
	want := piv.PINPolicy{PIVPIN: true}
	if got != want {
		t.Errorf("Policy() = %+v, want %+v", got, want)
	}

	d.PINUsagePolicy = []byte{0x60}
	if _, err := d.Policy(); err == nil {
		t.Error("expected an error for a 1 byte policy")
	}
}

func TestParsePrintedInformation(t *testing.T) {
	data := tlv.Hex(
		"53 17",
		"01 08 4A6F686E20446F65",   // "John Doe"
		"04 09 323033304A554E3330", // "2030JUN30"
		"FE 00",
	)
	got, err := piv.ParsePrintedInformation(data)
	if err != nil {
		t.Fatalf("ParsePrintedInformation() error: %v", err)
	}
	if got.Name != "John Doe" || got.ExpirationDate != "2030JUN30" {
		t.Errorf("got %+v", got)
	}
	if !strings.Contains(got.Describe(), `Printed.Name (01): "John Doe"`) {
		t.Errorf("Describe():\n%s", got.Describe())
	}
}

func TestParseKeyHistory(t *testing.T) {
	got, err := piv.ParseKeyHistory(tlv.Hex("53 08", "C1 01 02", "C2 01 01", "FE 00"))
	if err != nil {
		t.Fatalf("ParseKeyHistory() error: %v", err)
	}
	if got.KeysWithOnCardCerts != 2 || got.KeysWithOffCardCerts != 1 || got.Retired() != 3 {
		t.Errorf("got %+v", got)
	}

	var objs []string
	for _, o := range got.RetiredObjects() {
		objs = append(objs, o.String())
	}
	if diff := cmp.Diff([]string{"5FC10D", "5FC10E", "5FC10F"}, objs); diff != "" {
		t.Errorf("RetiredObjects() mismatch (-want +got):\n%s", diff)
	}
	for n, want := range map[int]bool{0: false, 1: true, 2: true, 3: false} {
		if got.OnCard(n) != want {
			t.Errorf("OnCard(%d) = %v, want %v", n, !want, want)
		}
	}
}

func TestKeyHistory_RetiredObjectsCapped(t *testing.T) {
	k := &piv.KeyHistory{KeysWithOnCardCerts: 15, KeysWithOffCardCerts: 10}
	if got := len(k.RetiredObjects()); got != 20 {
		t.Errorf("len(RetiredObjects()) = %d, want 20", got)
	}
}

func TestChallengeTemplate(t *testing.T) {
	challenge := bytes.Repeat([]byte{0xAA}, 4)
	got := piv.ChallengeTemplate(challenge)
	want := tlv.Hex("7C 08 8200 8104 AAAAAAAA")
	if !bytes.Equal(got, want) {
		t.Errorf("ChallengeTemplate() = %X, want %X", got, want)
	}

	long := piv.ChallengeTemplate(make([]byte, 256))
	if !bytes.Equal(long[:8], tlv.Hex("7C 82 0106 8200 81 820100")[:8]) {
		t.Errorf("long template header = %X", long[:8])
	}
	if len(long) != 4+2+4+256 {
		t.Errorf("long template length = %d", len(long))
	}

	parsed, err := piv.ParseDynamicAuthTemplate(got)
	if err != nil {
		t.Fatalf("ParseDynamicAuthTemplate() error: %v", err)
	}
	if !bytes.Equal(parsed.Challenge, challenge) || len(parsed.Response) != 0 {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestParseDynamicAuthTemplate_Response(t *testing.T) {
	got, err := piv.ParseDynamicAuthTemplate(tlv.Hex("7C 05 82 03 010203"))
	if err != nil {
		t.Fatalf("ParseDynamicAuthTemplate() error: %v", err)
	}
	if !bytes.Equal(got.Response, tlv.Hex("010203")) {
		t.Errorf("Response = %X", got.Response)
	}
	if _, err := piv.ParseDynamicAuthTemplate(tlv.Hex("53 05 82 03 010203")); err == nil {
		t.Error("expected an error for a foreign template")
	}
}

func TestRetiredKeyManagement(t *testing.T) {
	first, _ := piv.RetiredKeyManagement(1)
	last, _ := piv.RetiredKeyManagement(20)
	if first.String() != "5FC10D" || last.String() != "5FC120" {
		t.Errorf("retired objects = %s..%s", first, last)
	}
	if _, err := piv.RetiredKeyManagement(21); err == nil {
		t.Error("expected an error above 20")
	}
}
