// Package ws implements WebSocket framing, message reassembly, and the
// RFC 6455 opening handshake, grounded on websocket/frame.rs,
// websocket/message.rs, websocket/stream.rs, and websocket/handler.rs.
package ws

import (
	"encoding/binary"
	"fmt"

	"github.com/tiihttp/tii/internal/stream"
)

// Opcode identifies a frame's payload interpretation (RFC 6455 §5.2).
type Opcode byte

const (
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2
	OpcodeClose        Opcode = 0x8
	OpcodePing         Opcode = 0x9
	OpcodePong         Opcode = 0xA
)

func parseOpcode(b byte) (Opcode, bool) {
	switch Opcode(b) {
	case OpcodeContinuation, OpcodeText, OpcodeBinary, OpcodeClose, OpcodePing, OpcodePong:
		return Opcode(b), true
	default:
		return 0, false
	}
}

// Frame is a single WebSocket frame (RFC 6455 §5.2).
type Frame struct {
	Fin        bool
	RSV        [3]bool
	Opcode     Opcode
	Mask       bool
	Length     uint64
	MaskingKey [4]byte
	Payload    []byte
}

// NewFrame builds an unmasked, final frame carrying payload, ready to
// send to a client (servers never mask outgoing frames, RFC 6455 §5.1).
func NewFrame(opcode Opcode, payload []byte) Frame {
	return Frame{
		Fin:     true,
		Opcode:  opcode,
		Length:  uint64(len(payload)),
		Payload: payload,
	}
}

// ReadFrame blocks until one frame has been read off s, unmasking the
// payload if the frame was masked.
func ReadFrame(s stream.Stream) (Frame, error) {
	var header [2]byte
	if err := s.ReadExact(header[:]); err != nil {
		return Frame{}, err
	}

	fin := header[0]&0x80 != 0
	rsv := [3]bool{header[0]&0x40 != 0, header[0]&0x20 != 0, header[0]&0x10 != 0}
	opcode, ok := parseOpcode(header[0] & 0x0F)
	if !ok {
		return Frame{}, fmt.Errorf("ws: invalid opcode %#x", header[0]&0x0F)
	}
	mask := header[1]&0x80 != 0

	length := uint64(header[1] & 0x7F)
	switch length {
	case 126:
		var ext [2]byte
		if err := s.ReadExact(ext[:]); err != nil {
			return Frame{}, err
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if err := s.ReadExact(ext[:]); err != nil {
			return Frame{}, err
		}
		length = binary.BigEndian.Uint64(ext[:])
	}

	var maskingKey [4]byte
	if mask {
		if err := s.ReadExact(maskingKey[:]); err != nil {
			return Frame{}, err
		}
	}

	payload := make([]byte, length)
	if length > 0 {
		if err := s.ReadExact(payload); err != nil {
			return Frame{}, err
		}
	}
	if mask {
		for i := range payload {
			payload[i] ^= maskingKey[i%4]
		}
	}

	return Frame{
		Fin:        fin,
		RSV:        rsv,
		Opcode:     opcode,
		Mask:       mask,
		Length:     length,
		MaskingKey: maskingKey,
		Payload:    payload,
	}, nil
}

// WriteFrame serializes f onto s and flushes.
func WriteFrame(s stream.Stream, f Frame) error {
	if err := writeFrameNoFlush(s, f); err != nil {
		return err
	}
	return s.Flush()
}

func writeFrameNoFlush(s stream.Stream, f Frame) error {
	var head [2]byte
	var rsvBits byte
	if f.RSV[0] {
		rsvBits |= 0x40
	}
	if f.RSV[1] {
		rsvBits |= 0x20
	}
	if f.RSV[2] {
		rsvBits |= 0x10
	}
	if f.Fin {
		head[0] |= 0x80
	}
	head[0] |= rsvBits | byte(f.Opcode)

	length := uint64(len(f.Payload))
	switch {
	case length < 126:
		head[1] = byte(length)
		if f.Mask {
			head[1] |= 0x80
		}
		if _, err := s.Write(head[:]); err != nil {
			return err
		}
	case length < 65536:
		head[1] = 126
		if f.Mask {
			head[1] |= 0x80
		}
		if _, err := s.Write(head[:]); err != nil {
			return err
		}
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(length))
		if _, err := s.Write(ext[:]); err != nil {
			return err
		}
	default:
		head[1] = 127
		if f.Mask {
			head[1] |= 0x80
		}
		if _, err := s.Write(head[:]); err != nil {
			return err
		}
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], length)
		if _, err := s.Write(ext[:]); err != nil {
			return err
		}
	}

	if f.Mask {
		if _, err := s.Write(f.MaskingKey[:]); err != nil {
			return err
		}
	}
	if len(f.Payload) > 0 {
		if _, err := s.Write(f.Payload); err != nil {
			return err
		}
	}
	return nil
}
