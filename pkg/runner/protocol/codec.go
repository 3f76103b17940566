package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
)

// EncodeInfo serializes info to the single argument passed to a plugin.
func EncodeInfo(info ProvisionInfo) (string, error) {
	data, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to marshal provision info: %w", err)
	}
	return string(data), nil
}

// DecodeInfo parses the provision info argument.
func DecodeInfo(arg string) (ProvisionInfo, error) {
	var info ProvisionInfo
	if err := json.Unmarshal([]byte(arg), &info); err != nil {
		return ProvisionInfo{}, fmt.Errorf("failed to parse provision info: %w", err)
	}
	return info, nil
}

// WriteStates writes states as one JSON array.
func WriteStates(w io.Writer, states []DeclaredState) error {
	if states == nil {
		states = []DeclaredState{}
	}
	if err := json.NewEncoder(w).Encode(states); err != nil {
		return fmt.Errorf("failed to write states: %w", err)
	}
	return nil
}

// ReadStates reads the JSON array of states a plugin receives.
func ReadStates(r io.Reader) ([]DeclaredState, error) {
	var states []DeclaredState
	if err := json.NewDecoder(r).Decode(&states); err != nil {
		return nil, fmt.Errorf("failed to read states: %w", err)
	}
	return states, nil
}

// Encoder writes ProvisionStateOutput lines.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder creates a new protocol encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes one output line and flushes it, so the reader sees results
// as they are produced.
func (e *Encoder) Encode(out *ProvisionStateOutput) error {
	if err := out.Validate(); err != nil {
		return fmt.Errorf("invalid output: %w", err)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// LineError reports an output line that could not be decoded. Decoding can
// continue past it.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v: %q", e.Line, e.Err, e.Text)
}

func (e *LineError) Unwrap() error { return e.Err }

// Decoder reads ProvisionStateOutput lines.
type Decoder struct {
	r    *bufio.Scanner
	line int
}

// NewDecoder creates a new protocol decoder.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	const maxCapacity = 10 * 1024 * 1024 // 10 MB
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, maxCapacity)
	return &Decoder{r: scanner}
}

// Decode reads the next output. Blank lines are skipped. A malformed line
// yields a *LineError; io.EOF marks the end of the stream. Any other error
// is fatal to the stream.
func (d *Decoder) Decode() (*ProvisionStateOutput, error) {
	for {
		if !d.r.Scan() {
			if err := d.r.Err(); err != nil {
				return nil, fmt.Errorf("scan error: %w", err)
			}
			return nil, io.EOF
		}
		d.line++

		line := bytes.TrimSpace(d.r.Bytes())
		if len(line) == 0 {
			continue
		}

		var out ProvisionStateOutput
		if err := json.Unmarshal(line, &out); err != nil {
			return nil, &LineError{Line: d.line, Text: string(line), Err: err}
		}
		if err := out.Validate(); err != nil {
			return nil, &LineError{Line: d.line, Text: string(line), Err: err}
		}
		return &out, nil
	}
}

// All iterates over the stream. Line errors are yielded in place and
// iteration continues; a fatal error is yielded last.
func (d *Decoder) All() iter.Seq2[*ProvisionStateOutput, error] {
	return func(yield func(*ProvisionStateOutput, error) bool) {
		for {
			out, err := d.Decode()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(out, err) {
				return
			}

			var lineErr *LineError
			if err != nil && !errors.As(err, &lineErr) {
				return
			}
		}
	}
}
