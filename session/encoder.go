package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	credentialFormatVersionCurrent = 1

	// CurrentSchemaVersion is the blob version written by [Encode].
	CurrentSchemaVersion = credentialFormatVersionCurrent
)

// ErrTokenTooLong is returned when a token does not fit the length prefix.
var ErrTokenTooLong = errors.New("token too long")

// Encode serializes the credential pair as
// version(1) | len(2) access | access | len(2) refresh | refresh | savedAt(8).
func Encode(c Credential) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(1 + 2 + len(c.AccessToken) + 2 + len(c.RefreshToken) + 8)

	buf.WriteByte(credentialFormatVersionCurrent)

	if err := writeString(&buf, c.AccessToken); err != nil {
		return nil, fmt.Errorf("access token: %w", err)
	}
	if err := writeString(&buf, c.RefreshToken); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	var savedAt int64
	if !c.SavedAt.IsZero() {
		savedAt = c.SavedAt.Unix()
	}
	if err := binary.Write(&buf, binary.BigEndian, savedAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by [Encode].
func Decode(data []byte) (Credential, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return Credential{}, err
	}
	if version != credentialFormatVersionCurrent {
		return Credential{}, fmt.Errorf("unsupported credential schema version %d", version)
	}

	var c Credential
	if c.AccessToken, err = readString(reader); err != nil {
		return Credential{}, err
	}
	if c.RefreshToken, err = readString(reader); err != nil {
		return Credential{}, err
	}

	var savedAt int64
	if err := binary.Read(reader, binary.BigEndian, &savedAt); err != nil {
		return Credential{}, err
	}
	if savedAt > 0 {
		c.SavedAt = unixTime(savedAt)
	}

	if reader.Len() != 0 {
		return Credential{}, errors.New("trailing bytes after credential")
	}

	return c, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return ErrTokenTooLong
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(reader, out); err != nil {
		return "", err
	}
	return string(out), nil
}
