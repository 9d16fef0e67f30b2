// Package protocol owns the V4-link wire contract.
//
// Ownership boundary:
// - command and status codes shared by host and device
// - frame primitives (frame)
// - checksum (crc8)
// - multi-word bytecode container (v4bc)
//
// Frame layout:
//
//	[0xA5][LEN_L][LEN_H][CMD][DATA...][CRC8]
//
// CRC8 covers LEN_L through the last DATA byte. Acknowledgements use the same
// layout with the status code in the CMD slot and LEN counting the status byte.
package protocol
