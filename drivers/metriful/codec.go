package metriful

import "metriful-go/errcode"

// UnitInfo is the presentation metadata of a unit.
type UnitInfo struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol,omitempty"`
}

// Unit declares how the bytes of one register decode into a T.
//
// Len is the fixed wire length. A Len of 0 marks an aggregate that issues
// several transfers itself; such units cannot Decode a raw block.
type Unit[T any] struct {
	UnitInfo
	Len int

	decode func(b []byte) (T, error)
	// read replaces the single block transfer for aggregates.
	read func(s *Session) (T, error)
}

// Decode decodes exactly u.Len bytes.
func (u *Unit[T]) Decode(b []byte) (T, error) {
	var zero T
	if u.decode == nil {
		return zero, &errcode.E{C: errcode.Unsupported, Op: "decode", Msg: u.Name + " has no raw block form"}
	}
	if len(b) != u.Len {
		return zero, &LengthError{Unit: u.Name, Want: u.Len, Got: len(b)}
	}
	return u.decode(b)
}

// readFrom performs the unit's transfer at reg and decodes it.
func (u *Unit[T]) readFrom(s *Session, reg byte) (T, error) {
	if u.read != nil {
		return u.read(s)
	}
	b, err := s.readBlock(reg, u.Len)
	if err != nil {
		var zero T
		return zero, err
	}
	return u.Decode(b)
}

func fixedUnit[T any](name, symbol string, n int, dec func(b []byte) (T, error)) *Unit[T] {
	return &Unit[T]{UnitInfo: UnitInfo{Name: name, Symbol: symbol}, Len: n, decode: dec}
}

// plain wraps an infallible decoder.
func plain[T any](f func(b []byte) T) func(b []byte) (T, error) {
	return func(b []byte) (T, error) { return f(b), nil }
}

// ---------------- Fixed-point helpers ----------------
//
// Two-part values carry an integer part followed by one fractional byte
// holding tenths: value = int + frac/10.

func fixed(intPart uint32, frac byte) float64 {
	return float64(intPart) + float64(frac)/10
}

// fixed8 decodes u8 integer + u8 fraction.
func fixed8(b []byte) float64 { return fixed(uint32(b[0]), b[1]) }

// fixed16 decodes little-endian u16 integer + u8 fraction.
func fixed16(b []byte) float64 { return fixed(uint32(le16(b)), b[2]) }

// signedFixed8 decodes a temperature: the MSB of the integer byte is the sign.
func signedFixed8(b []byte) float64 {
	v := fixed(uint32(b[0]&0x7F), b[1])
	if b[0]&0x80 != 0 {
		return -v
	}
	return v
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// enumByte validates a closed enumerant in [0, max].
func enumByte[E ~uint8](field Field, max E) func(b []byte) (E, error) {
	return func(b []byte) (E, error) {
		if E(b[0]) > max {
			return 0, &DecodeError{Field: field, Value: b[0]}
		}
		return E(b[0]), nil
	}
}

// splitAt cuts b into consecutive pieces of the given lengths.
func splitAt(b []byte, lens ...int) [][]byte {
	out := make([][]byte, 0, len(lens))
	for _, n := range lens {
		out = append(out, b[:n:n])
		b = b[n:]
	}
	return out
}
