package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sys/unix"
)

// Record is one reported result. Errno is zero when the result carries no
// errno.
type Record struct {
	TCID    string     `json:"tcid"`
	Outcome Outcome    `json:"outcome"`
	Message string     `json:"message"`
	Errno   unix.Errno `json:"errno,omitempty"`
}

// Encoder writes records as newline-delimited JSON. A child process uses it
// to hand its results back to the parent over stdout.
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

func (e *Encoder) Encode(rec Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode %s record: %w", rec.TCID, err)
	}
	return nil
}

// Decode reads records written by an Encoder until EOF and passes each to fn.
// It stops at the first malformed record or error returned by fn.
func Decode(r io.Reader, fn func(Record) error) error {
	dec := json.NewDecoder(r)
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode result record: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
