package session

import (
	"testing"
	"time"
)

// FuzzCredentialDecode exercises the binary credential decoder with arbitrary
// inputs. Goal: no panics and a clean error on anything not produced by Encode.
func FuzzCredentialDecode(f *testing.F) {
	encoded, err := Encode(Credential{
		AccessToken:  "access-fuzz",
		RefreshToken: "refresh-fuzz",
		SavedAt:      time.Unix(1700000000, 0),
	})
	if err == nil {
		f.Add(encoded)
		if len(encoded) > 6 {
			f.Add(encoded[:6])
		}
	}

	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add([]byte{1})
	f.Add([]byte{1, 0xFF, 0xFF})
	f.Add([]byte{255, 255, 255})

	f.Fuzz(func(t *testing.T, data []byte) {
		c, err := Decode(data)
		if err != nil {
			return
		}
		again, err := Encode(c)
		if err != nil {
			t.Fatalf("re-encode decoded credential: %v", err)
		}
		if _, err := Decode(again); err != nil {
			t.Fatalf("decode re-encoded credential: %v", err)
		}
	})
}
