// Package crc8 implements the CRC-8 used by V4-link frames.
//
// Parameters: polynomial 0x07 (x^8 + x^2 + x + 1), initial value 0x00,
// MSB first, no reflection, no final XOR.
package crc8

// Poly is the generator polynomial without the implicit x^8 term.
const Poly byte = 0x07

var table = makeTable(Poly)

func makeTable(poly byte) [256]byte {
	var t [256]byte
	for i := range t {
		crc := byte(i)
		for bit := 0; bit < 8; bit++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}

// Checksum returns the CRC-8 of data.
func Checksum(data []byte) byte {
	return Update(0, data)
}

// Update continues a running checksum with more data.
func Update(crc byte, data []byte) byte {
	for _, b := range data {
		crc = table[crc^b]
	}
	return crc
}
