// Package record stores timestamped readings as a CBOR stream: one Header
// followed by any number of Records.
package record

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"metriful-go/drivers/metriful"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	if encMode, err = encOpts.EncMode(); err != nil {
		panic(fmt.Sprintf("record: cbor encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:      cbor.DupMapKeyQuiet,
		IndefLength:    cbor.IndefLengthAllowed,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}
	if decMode, err = decOpts.DecMode(); err != nil {
		panic(fmt.Sprintf("record: cbor decoder mode: %v", err))
	}
}

// Version is the current stream format.
const Version = 1

// Header opens every recording.
type Header struct {
	Version  int       `cbor:"1,keyasint"`
	RunID    string    `cbor:"2,keyasint"`
	Started  time.Time `cbor:"3,keyasint"`
	Address  uint16    `cbor:"4,keyasint"`
	Strategy string    `cbor:"5,keyasint,omitempty"`
	Metrics  []string  `cbor:"6,keyasint"`
}

// NewHeader returns a Header with a fresh run id.
func NewHeader(started time.Time, addr uint16, strategy string, metrics []string) Header {
	return Header{
		Version:  Version,
		RunID:    uuid.NewString(),
		Started:  started,
		Address:  addr,
		Strategy: strategy,
		Metrics:  metrics,
	}
}

// Record is one reading, or the error that ended the run.
type Record struct {
	Metric string    `cbor:"1,keyasint"`
	Time   time.Time `cbor:"2,keyasint"`
	Unit   string    `cbor:"3,keyasint,omitempty"`
	Symbol string    `cbor:"4,keyasint,omitempty"`
	Value  any       `cbor:"5,keyasint,omitempty"`
	Err    string    `cbor:"6,keyasint,omitempty"`
}

// ---------------- Writer ----------------

// Writer appends Records after a Header. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	enc    *cbor.Encoder
	header Header
	closed bool
}

// Create truncates path and writes hdr to it.
func Create(path string, hdr Header) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, hdr)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// NewWriter writes hdr to w. Close closes w if it is an io.Closer.
func NewWriter(w io.Writer, hdr Header) (*Writer, error) {
	enc := encMode.NewEncoder(w)
	if err := enc.Encode(hdr); err != nil {
		return nil, fmt.Errorf("record: write header: %w", err)
	}
	return &Writer{w: w, enc: enc, header: hdr}, nil
}

// Header returns the header written at the start of the stream.
func (w *Writer) Header() Header { return w.header }

// Write appends a reading of metric.
func (w *Writer) Write(metric string, r metriful.Reading) error {
	u := r.UnitInfo()
	return w.write(Record{Metric: metric, Time: r.Timestamp(), Unit: u.Name, Symbol: u.Symbol, Value: r.Any()})
}

// WriteError appends the error that ended a run.
func (w *Writer) WriteError(metric string, at time.Time, err error) error {
	return w.write(Record{Metric: metric, Time: at, Err: err.Error()})
}

func (w *Writer) write(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("record: writer closed")
	}
	return w.enc.Encode(rec)
}

// Close is safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if c, ok := w.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ---------------- Reader ----------------

// Reader streams Records from a recording.
type Reader struct {
	r      io.Reader
	dec    *cbor.Decoder
	header Header
}

// Open opens path and reads its Header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// NewReader reads the Header from r.
func NewReader(r io.Reader) (*Reader, error) {
	dec := decMode.NewDecoder(r)
	var hdr Header
	if err := dec.Decode(&hdr); err != nil {
		return nil, fmt.Errorf("record: read header: %w", err)
	}
	if hdr.Version != Version {
		return nil, fmt.Errorf("record: unsupported version %d", hdr.Version)
	}
	return &Reader{r: r, dec: dec, header: hdr}, nil
}

func (r *Reader) Header() Header { return r.header }

// Next returns the next Record, or io.EOF at the end of the stream.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// All ranges over the remaining Records. A decode error other than io.EOF
// is yielded once and ends the sequence.
func (r *Reader) All() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			rec, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// Close closes the underlying reader if it is an io.Closer.
func (r *Reader) Close() error {
	if c, ok := r.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
