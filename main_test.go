package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gregLibert/piv-reader/pkg/carddata"
	"github.com/gregLibert/piv-reader/pkg/piv/pivtest"
	"github.com/gregLibert/piv-reader/pkg/tlv"
)

// saveProfile writes a profile holding a signed CHUID, a discovery object and a key history.
func saveProfile(t *testing.T, dir string, chuid []byte) string {
	t.Helper()

	c := carddata.New()
	c.SetCHUID(chuid)
	_ = c.Set(carddata.TagDiscovery, carddata.NewDataTemplate(
		tlv.Hex("7E 12", "4F 0B A0000003080000100001 00", "5F2F 02 4010")))
	_ = c.Set(carddata.TagKeyHistory, carddata.NewDataTemplate(tlv.Hex("53 05", "C1 01 01", "FE 00")))

	path, err := c.Save(dir)
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	return path
}

// captureStdout runs fn and returns what it printed.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "stdout")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	stdout := os.Stdout
	os.Stdout = f
	defer func() { os.Stdout = stdout }()
	fn()

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	out, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	return string(out)
}

func TestRun_ExitCode(t *testing.T) {
	now := time.Now()
	key := pivtest.NewKey(t, pivtest.RSA2048)
	signed := pivtest.SignedCHUIDObject(t, now.AddDate(1, 0, 0), key, pivtest.NewCertificate(t, key, now.Add(-time.Hour)))
	dir := t.TempDir()
	profile := saveProfile(t, dir, signed)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"Unknown flag", []string{"-no-such-flag"}, 2},
		{"Missing profile", []string{"-load", filepath.Join(dir, "missing.ber")}, 1},
		{"Saved profile", []string{"-load", profile, "-dump"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got int
			captureStdout(t, func() { got = run(tt.args) })
			if got != tt.want {
				t.Errorf("run(%q) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}

func TestInspectProfile_CHUIDSignature(t *testing.T) {
	now := time.Now()
	key := pivtest.NewKey(t, pivtest.RSA2048)
	signed := pivtest.SignedCHUIDObject(t, now.AddDate(1, 0, 0), key, pivtest.NewCertificate(t, key, now.Add(-time.Hour)))

	tests := []struct {
		name  string
		chuid []byte
		want  []string
	}{
		{
			name:  "Signed",
			chuid: signed,
			want:  []string{">> Verifying CHUID Signature:", "######### BEGIN CONTENT SIGNER ########", ">> Signature Verified!"},
		},
		{
			name:  "Placeholder signature",
			chuid: pivtest.CHUIDObject(t, now.AddDate(1, 0, 0)),
			want:  []string{">> Verifying CHUID Signature:", ">> Problem with Signature: "},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := saveProfile(t, t.TempDir(), tt.chuid)

			var err error
			out := captureStdout(t, func() { err = inspectProfile(path, true) })
			if err != nil {
				t.Fatalf("inspectProfile() error: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output lacks %q:\n%s", want, out)
				}
			}
			for _, want := range []string{"--- Discovery Object", "--- Key History", "Retired 01: 5FC10D"} {
				if !strings.Contains(out, want) {
					t.Errorf("dump lacks %q:\n%s", want, out)
				}
			}
		})
	}
}
