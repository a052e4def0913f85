package protocol

// Checksum computes the frame checksum: the low byte of the sum of all
// bytes preceding the checksum position, headers and N included.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// payloadChecksum is Checksum over HEADER HEADER N payload without
// materializing the prefix.
func payloadChecksum(payload []byte) byte {
	h := byte(Header)
	sum := h + h + byte(len(payload)+1)
	return sum + Checksum(payload)
}
