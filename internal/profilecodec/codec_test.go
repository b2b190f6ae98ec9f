package profilecodec

import (
	"testing"

	"github.com/ScopeCreep-zip/spiritstream/internal/models"
)

func sampleProfile() *models.Profile {
	p := models.NewProfile("Test")
	p.OutputGroups = []models.OutputGroup{{
		ID:   "G",
		Name: "Default",
		Video: models.VideoSettings{Codec: "copy", Bitrate: "0k"},
		Audio: models.AudioSettings{Codec: "copy", Bitrate: "0k"},
		Container: models.ContainerSettings{Format: "flv"},
		StreamTargets: []models.StreamTarget{{
			ID: "T", Platform: "twitch", BaseURL: "rtmp://live.twitch.tv/app", StreamKey: "sk_123",
		}},
	}}
	return p
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	p := sampleProfile()
	data, err := Serialize(p)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.Name != p.Name || len(got.OutputGroups) != 1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestDeserializeMalformed(t *testing.T) {
	if _, err := Deserialize([]byte("{not json")); err == nil {
		t.Fatal("expected malformed-profile error")
	}
}

func TestSealOpenFileRoundTrip(t *testing.T) {
	plaintext, err := Serialize(sampleProfile())
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	sealed, err := SealFile(plaintext, "p@ss")
	if err != nil {
		t.Fatalf("SealFile: %v", err)
	}
	if string(sealed[:4]) != "MGLA" {
		t.Fatalf("expected MGLA magic, got %q", sealed[:4])
	}

	opened, err := OpenFile(sealed, "p@ss")
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if string(opened) != string(plaintext) {
		t.Fatal("opened plaintext does not match original")
	}
}

func TestOpenFileWrongPassword(t *testing.T) {
	sealed, err := SealFile([]byte("hello"), "correct")
	if err != nil {
		t.Fatalf("SealFile: %v", err)
	}
	if _, err := OpenFile(sealed, "wrong"); err == nil {
		t.Fatal("expected auth-failed for wrong password")
	}
}

func TestOpenFileBadMagic(t *testing.T) {
	if _, err := OpenFile([]byte("XXXXnotasealedfile"), "p"); err == nil {
		t.Fatal("expected bad-magic error")
	}
}

func TestOpenFileTruncated(t *testing.T) {
	if _, err := OpenFile([]byte("MGLA"), "p"); err == nil {
		t.Fatal("expected truncated error")
	}
}

func TestSealProducesFreshSaltAndNonce(t *testing.T) {
	a, err := SealFile([]byte("same plaintext"), "pw")
	if err != nil {
		t.Fatalf("SealFile: %v", err)
	}
	b, err := SealFile([]byte("same plaintext"), "pw")
	if err != nil {
		t.Fatalf("SealFile: %v", err)
	}
	if string(a) == string(b) {
		t.Fatal("expected distinct salt/nonce to produce distinct ciphertexts")
	}
}
