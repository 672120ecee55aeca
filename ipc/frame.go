// Package ipc implements the length-prefixed msgpack framing spoken by
// external model processes.
//
// Each frame is a 4-byte big-endian payload length followed by a msgpack
// map carrying a "type" discriminant. The host writes one invoke frame to
// the process's stdin; the process answers on stdout with run_start, token,
// run_end and run_error frames for any nested runs, then exactly one result
// frame.
package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// Frame type discriminants.
const (
	TypeInvoke   = "invoke"
	TypeRunStart = "run_start"
	TypeToken    = "token"
	TypeRunEnd   = "run_end"
	TypeRunError = "run_error"
	TypeResult   = "result"
)

// structTag lets payload values reuse their json field names.
const structTag = "json"

// InvokeFrame asks the process to run once.
type InvokeFrame struct {
	Type     string         `msgpack:"type"`
	Input    map[string]any `msgpack:"input"`
	Tags     []string       `msgpack:"tags,omitempty"`
	Metadata map[string]any `msgpack:"metadata,omitempty"`
}

// RunStartFrame opens a nested run. An empty ParentID nests it under the
// model's own run.
type RunStartFrame struct {
	Type     string         `msgpack:"type"`
	ID       string         `msgpack:"id"`
	ParentID string         `msgpack:"parent_id,omitempty"`
	Name     string         `msgpack:"name"`
	RunType  string         `msgpack:"run_type"`
	Inputs   map[string]any `msgpack:"inputs,omitempty"`
}

// TokenFrame streams one token on an open run.
type TokenFrame struct {
	Type  string `msgpack:"type"`
	ID    string `msgpack:"id"`
	Token string `msgpack:"token"`
}

// RunEndFrame closes a nested run successfully.
type RunEndFrame struct {
	Type    string         `msgpack:"type"`
	ID      string         `msgpack:"id"`
	Outputs map[string]any `msgpack:"outputs,omitempty"`
}

// RunErrorFrame closes a nested run with an error.
type RunErrorFrame struct {
	Type  string `msgpack:"type"`
	ID    string `msgpack:"id"`
	Error string `msgpack:"error"`
}

// ResultFrame is the final frame of an invocation. A non-empty Error fails
// the invocation.
type ResultFrame struct {
	Type    string         `msgpack:"type"`
	Outputs map[string]any `msgpack:"outputs,omitempty"`
	Error   string         `msgpack:"error,omitempty"`
}

// FrameErrorKind classifies frame errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack encoding or decoding error.
	FrameErrorDecode
)

// FrameError represents a frame encoding or decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the stream cannot continue after this error.
// Partial and oversized frames leave the stream misaligned.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// FrameDecoder decodes length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single frame from the stream.
// Returns the raw payload bytes (msgpack-encoded).
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	_, err = io.ReadFull(d.reader, payload)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	return payload, nil
}

// Next reads and decodes one frame. See DecodeFrame for the result types.
func (d *FrameDecoder) Next() (any, error) {
	payload, err := d.ReadFrame()
	if err != nil {
		return nil, err
	}
	return DecodeFrame(payload)
}

// FrameEncoder writes length-prefixed msgpack frames to a stream.
type FrameEncoder struct {
	writer io.Writer
}

// NewFrameEncoder creates a new frame encoder.
func NewFrameEncoder(w io.Writer) *FrameEncoder {
	return &FrameEncoder{writer: w}
}

// WriteFrame encodes v and writes it as one frame.
func (e *FrameEncoder) WriteFrame(v any) error {
	payload, err := Encode(v)
	if err != nil {
		return err
	}
	frame := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(frame[:LengthPrefixSize], uint32(len(payload)))
	copy(frame[LengthPrefixSize:], payload)
	_, err = e.writer.Write(frame)
	return err
}

// Encode marshals v as a frame payload.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag(structTag)
	if err := enc.Encode(v); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to encode frame",
			Err:  err,
		}
	}
	if buf.Len() > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", buf.Len(), MaxPayloadSize),
		}
	}
	return buf.Bytes(), nil
}

// frameTypeProbe is used to peek at the type field without full decode.
type frameTypeProbe struct {
	Type string `msgpack:"type"`
}

// DecodeFrame decodes a payload into *InvokeFrame, *RunStartFrame,
// *TokenFrame, *RunEndFrame, *RunErrorFrame or *ResultFrame according to its
// type field. An unknown type is a decode error.
func DecodeFrame(payload []byte) (any, error) {
	var probe frameTypeProbe
	if err := msgpack.Unmarshal(payload, &probe); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode frame type",
			Err:  err,
		}
	}

	var v any
	switch probe.Type {
	case TypeInvoke:
		v = &InvokeFrame{}
	case TypeRunStart:
		v = &RunStartFrame{}
	case TypeToken:
		v = &TokenFrame{}
	case TypeRunEnd:
		v = &RunEndFrame{}
	case TypeRunError:
		v = &RunErrorFrame{}
	case TypeResult:
		v = &ResultFrame{}
	default:
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  fmt.Sprintf("unknown frame type %q", probe.Type),
		}
	}

	dec := msgpack.NewDecoder(bytes.NewReader(payload))
	dec.SetCustomStructTag(structTag)
	dec.UseLooseInterfaceDecoding(true)
	if err := dec.Decode(v); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  fmt.Sprintf("failed to decode %s frame", probe.Type),
			Err:  err,
		}
	}
	return v, nil
}
