package ptz

// checksum sums the given bytes mod 256, matching calculateChecksum in
// the original controller (a plain running byte sum, no carry).
func checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// directionOpcode returns the command bytes written into the move
// frame's payload for a given direction, matching the per-direction
// case arms of the original sendMoveCommand switch. Left and Right
// write a single opcode byte; Up/Down write the opcode followed by one
// zero byte; the zoom directions write the opcode followed by two zero
// bytes. The speed byte is appended immediately after by the caller.
func directionOpcode(d Direction) []byte {
	switch d {
	case Left:
		return []byte{0x40}
	case Right:
		return []byte{0x80}
	case Up:
		return []byte{0x10, 0x00}
	case Down:
		return []byte{0x20, 0x00}
	case ZoomIn:
		return []byte{0x04, 0x00, 0x00}
	case ZoomOut:
		return []byte{0x08, 0x00, 0x00}
	default:
		return nil
	}
}

// buildMoveFrame constructs the 11-byte move/stop frame. speed == 0
// builds a stop frame: cmdL is 0x01 (response required) and the
// payload carries no direction opcode. speed > 0 builds a move frame:
// cmdL is 0x41 (no response expected), and the payload carries the
// direction opcode followed by the speed byte.
func buildMoveFrame(direction Direction, speed int) []byte {
	frame := make([]byte, 11)
	frame[0] = 0x96
	frame[1] = 0x00 // addr
	frame[2] = 0x00 // cmdH

	if speed > 0 {
		frame[3] = 0x41
	} else {
		frame[3] = 0x01
	}
	frame[4] = 0x05 // payload length

	if speed > 0 {
		opcode := directionOpcode(direction)
		copy(frame[5:], opcode)
		frame[5+len(opcode)] = byte(speed)
	}

	frame[10] = checksum(frame[0:10])
	return frame
}

// positionQueryFrame is the fixed 7-byte "read current position"
// command. It is not computed from the generic checksum helper because
// it is a literal constant lifted from the protocol, not a frame this
// package composes field-by-field.
func positionQueryFrame() []byte {
	return []byte{0x96, 0x00, 0x06, 0x01, 0x01, 0x01, 0x9F}
}

// buildGotoFrame constructs the 17-byte "go to position" frame that
// recalls a captured preset, with speed 0x40 for a manual recall or
// 0x20 for an auto-tour recall.
func buildGotoFrame(pos [positionPayloadSize]byte, auto bool) []byte {
	frame := make([]byte, 17)
	frame[0] = 0x96
	frame[1] = 0x00
	frame[2] = 0x01
	frame[3] = 0x01
	frame[4] = 0x0F
	copy(frame[5:15], pos[:])
	if auto {
		frame[15] = 0x20
	} else {
		frame[15] = 0x40
	}
	frame[16] = checksum(frame[0:16])
	return frame
}
