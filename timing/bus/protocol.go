// Package bus defines the tagged memory request/response protocol, the
// point-to-point links that carry it, and the multiplexers and routers that
// share one port among several streams.
package bus

import (
	"encoding/binary"

	"github.com/rs/xid"
)

// Cmd is the kind of a memory access.
type Cmd uint8

// Memory commands.
const (
	CmdRead Cmd = iota
	CmdWrite
)

func (c Cmd) String() string {
	if c == CmdWrite {
		return "Write"
	}

	return "Read"
}

// Fault is an architectural error reported on a response.
type Fault uint8

// Faults.
const (
	FaultNone Fault = iota
	// FaultPage is a translation failure: invalid entry or permission denied.
	FaultPage
	// FaultAccess is a bus error, for example an unmapped device address.
	FaultAccess
	// FaultMisaligned marks an access that was never issued because its
	// address is not aligned.
	FaultMisaligned
)

func (f Fault) String() string {
	switch f {
	case FaultPage:
		return "PageFault"
	case FaultAccess:
		return "AccessFault"
	case FaultMisaligned:
		return "MisalignedFault"
	}

	return "None"
}

// Request is a memory access. Tag is owned by the requester and comes back
// unchanged on the response.
type Request struct {
	ID   string
	Addr uint64
	Cmd  Cmd
	Size int

	// Data holds Size bytes for writes.
	Data []byte

	Tag uint64

	// Exec marks an instruction fetch.
	Exec bool

	// Physical requests bypass translation.
	Physical bool
}

// Response answers a Request.
type Response struct {
	RespondTo string
	Cmd       Cmd

	// Data holds the bytes read, nil for writes and faults.
	Data []byte

	Tag   uint64
	Fault Fault
}

// NewRead creates a read request.
func NewRead(addr uint64, size int) *Request {
	return &Request{
		ID:   xid.New().String(),
		Addr: addr,
		Cmd:  CmdRead,
		Size: size,
	}
}

// NewWrite creates a write of the low size bytes of value.
func NewWrite(addr uint64, size int, value uint64) *Request {
	return NewBlockWrite(addr, EncodeValue(value, size))
}

// NewBlockWrite creates a write of a byte block.
func NewBlockWrite(addr uint64, data []byte) *Request {
	return &Request{
		ID:   xid.New().String(),
		Addr: addr,
		Cmd:  CmdWrite,
		Size: len(data),
		Data: data,
	}
}

// IsWrite returns true for writes.
func (r *Request) IsWrite() bool {
	return r.Cmd == CmdWrite
}

// Value decodes the write data as a little-endian value.
func (r *Request) Value() uint64 {
	return DecodeValue(r.Data)
}

// Clone returns a shallow copy of the request. Data is shared.
func (r *Request) Clone() *Request {
	c := *r
	return &c
}

// Reply builds the response carrying data.
func (r *Request) Reply(data []byte) *Response {
	resp := &Response{RespondTo: r.ID, Cmd: r.Cmd, Tag: r.Tag}
	if r.Cmd == CmdRead {
		resp.Data = data
	}

	return resp
}

// ReplyFault builds a fault response.
func (r *Request) ReplyFault(f Fault) *Response {
	return &Response{RespondTo: r.ID, Cmd: r.Cmd, Tag: r.Tag, Fault: f}
}

// Value decodes the read data as a little-endian value.
func (r *Response) Value() uint64 {
	return DecodeValue(r.Data)
}

// EncodeValue returns the low size bytes of value in little-endian order.
func EncodeValue(value uint64, size int) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)

	data := make([]byte, size)
	copy(data, buf[:])

	return data
}

// DecodeValue reads up to eight little-endian bytes.
func DecodeValue(data []byte) uint64 {
	var buf [8]byte
	copy(buf[:], data)

	return binary.LittleEndian.Uint64(buf[:])
}
