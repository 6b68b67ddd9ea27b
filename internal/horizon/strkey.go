package horizon

import (
	"encoding/base32"

	"github.com/snksoft/crc"
)

// version byte of an ed25519 account id, renders as a leading 'G'
const versionAccountID byte = 6 << 3

var strkeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// IsValidPublicKey reports whether addr is a well-formed account id:
// version byte, 32 byte key and a CRC16-XModem checksum, base32 encoded.
func IsValidPublicKey(addr string) bool {
	if len(addr) != 56 {
		return false
	}

	raw, err := strkeyEncoding.DecodeString(addr)
	if err != nil || len(raw) != 35 {
		return false
	}
	if raw[0] != versionAccountID {
		return false
	}

	payload, sum := raw[:33], raw[33:]
	want := uint16(sum[0]) | uint16(sum[1])<<8
	return uint16(crc.CalculateCRC(crc.XMODEM, payload)) == want
}
