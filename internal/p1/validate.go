package p1

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/sigurn/crc16"
)

// CRC16_ARC (polynomial 0xA001, initial value 0x0000) is the checksum the
// DSMR P1 companion standard specifies for telegram trailers.
var crcTable = crc16.MakeTable(crc16.CRC16_ARC)

// Validate checks the framing markers of a raw telegram block and, when
// verifyChecksum is set (DSMR 4.0+), the 4-hex-digit CRC following the end
// marker. The checksum covers everything from the leading '/' through the
// '!' inclusive. DSMR 2.2 telegrams carry no trailer, so 2.2 mode runs with
// verifyChecksum off.
func Validate(block []byte, verifyChecksum bool) error {
	if len(block) == 0 || block[0] != '/' {
		return fmt.Errorf("block does not start with '/'")
	}

	bang := bytes.IndexByte(block, '!')
	if bang < 0 {
		return fmt.Errorf("block has no end marker")
	}
	if bytes.IndexByte(block[bang+1:], '!') >= 0 {
		return fmt.Errorf("stray end marker in block")
	}

	if !verifyChecksum {
		return nil
	}

	if len(block) < bang+5 {
		return fmt.Errorf("block too short for checksum trailer")
	}
	want, err := strconv.ParseUint(string(block[bang+1:bang+5]), 16, 16)
	if err != nil {
		return fmt.Errorf("bad checksum trailer: %w", err)
	}

	got := crc16.Checksum(block[:bang+1], crcTable)
	if got != uint16(want) {
		return fmt.Errorf("checksum mismatch: telegram says %04X, calculated %04X", want, got)
	}
	return nil
}
