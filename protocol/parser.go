package protocol

// ParseState is a state of the frame decoder automaton.
type ParseState int

// Decoder states, in frame order.
const (
	SeekHeader1 ParseState = iota
	SeekHeader2
	ReadLength
	ReadPayload
	VerifyChecksum
)

func (s ParseState) String() string {
	switch s {
	case SeekHeader1:
		return "SeekHeader1"
	case SeekHeader2:
		return "SeekHeader2"
	case ReadLength:
		return "ReadLength"
	case ReadPayload:
		return "ReadPayload"
	case VerifyChecksum:
		return "VerifyChecksum"
	default:
		return "Unknown"
	}
}

// Parser decodes a byte stream into frame payloads one byte at a time.
//
// Bad headers, N=0 and checksum mismatches are dropped silently and the
// automaton returns to SeekHeader1; the stream resynchronizes on the next
// 0xFF 0xFF pair. A Parser is not safe for concurrent use.
type Parser struct {
	state   ParseState
	want    int
	payload []byte
	sum     byte

	// Dropped counts frames discarded on checksum mismatch.
	Dropped int
}

// NewParser returns a Parser waiting for the first header byte.
func NewParser() *Parser {
	return &Parser{payload: make([]byte, 0, MaxPayloadSize)}
}

// State returns the current automaton state.
func (p *Parser) State() ParseState {
	return p.state
}

// Reset discards any partial frame.
func (p *Parser) Reset() {
	p.state = SeekHeader1
	p.want = 0
	p.sum = 0
	p.payload = p.payload[:0]
}

// Feed advances the automaton by one byte. When b completes a valid frame
// the payload is returned with ok set; the returned slice is a fresh copy.
func (p *Parser) Feed(b byte) (payload []byte, ok bool) {
	switch p.state {
	case SeekHeader1:
		if b == Header {
			p.sum = b
			p.state = SeekHeader2
		}

	case SeekHeader2:
		if b == Header {
			p.sum += b
			p.state = ReadLength
		} else {
			// the non-matching byte is consumed, not re-examined
			p.Reset()
		}

	case ReadLength:
		if b == 0 {
			p.Reset()
			return nil, false
		}
		p.sum += b
		p.want = int(b) - 1
		p.payload = p.payload[:0]
		if p.want == 0 {
			p.state = VerifyChecksum
		} else {
			p.state = ReadPayload
		}

	case ReadPayload:
		p.sum += b
		p.payload = append(p.payload, b)
		if len(p.payload) == p.want {
			p.state = VerifyChecksum
		}

	case VerifyChecksum:
		valid := b == p.sum
		if valid {
			payload = make([]byte, len(p.payload))
			copy(payload, p.payload)
		} else {
			p.Dropped++
		}
		p.Reset()
		return payload, valid
	}

	return nil, false
}

// Write feeds every byte of data and calls emit for each completed frame.
func (p *Parser) Write(data []byte, emit func(payload []byte)) {
	for _, b := range data {
		if payload, ok := p.Feed(b); ok {
			emit(payload)
		}
	}
}

// Decode extracts every valid payload from a complete byte stream.
func Decode(stream []byte) [][]byte {
	var out [][]byte
	NewParser().Write(stream, func(payload []byte) {
		out = append(out, payload)
	})
	return out
}
