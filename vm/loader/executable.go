// Package loader parses the synthetic "executable" format the kernel
// demand-loads user programs from: a fixed header (magic, code segment,
// initialized-data segment, declared page count) followed by the code and
// data bytes themselves. Real loader formats (ELF, COFF) are out of scope;
// this is a minimal stand-in exposing only the segment reads demand
// loading needs.
package loader

import (
	"encoding/binary"
	"errors"
)

const magic uint32 = 0x4e414348 // "NACH"

const headerSize = 4 + 4 + 4 + 4 + 4 + 4 // magic, codeAddr, codeSize, initDataAddr, initDataSize, numPages

// Executable is a parsed synthetic program image.
type Executable struct {
	CodeAddr     uint64
	CodeSize     uint64
	InitDataAddr uint64
	InitDataSize uint64
	NumPages     uint64

	code []byte
	data []byte
}

// Parse reads a synthetic executable image from raw bytes.
func Parse(raw []byte) (*Executable, error) {
	if len(raw) < headerSize {
		return nil, errors.New("loader: image too small for header")
	}
	if binary.LittleEndian.Uint32(raw[0:4]) != magic {
		return nil, errors.New("loader: bad magic")
	}
	e := &Executable{
		CodeAddr:     uint64(binary.LittleEndian.Uint32(raw[4:8])),
		CodeSize:     uint64(binary.LittleEndian.Uint32(raw[8:12])),
		InitDataAddr: uint64(binary.LittleEndian.Uint32(raw[12:16])),
		InitDataSize: uint64(binary.LittleEndian.Uint32(raw[16:20])),
		NumPages:     uint64(binary.LittleEndian.Uint32(raw[20:24])),
	}
	body := raw[headerSize:]
	if uint64(len(body)) < e.CodeSize+e.InitDataSize {
		return nil, errors.New("loader: image truncated")
	}
	e.code = body[:e.CodeSize]
	e.data = body[e.CodeSize : e.CodeSize+e.InitDataSize]
	return e, nil
}

// Encode serializes hdr plus code and data into one synthetic image, the
// inverse of Parse; used by tests to build program images.
func Encode(codeAddr, initDataAddr, numPages uint64, code, data []byte) []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(codeAddr))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(code)))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(initDataAddr))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(data)))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(numPages))
	buf = append(buf, code...)
	buf = append(buf, data...)
	return buf
}

// ReadCode copies n bytes starting at offset within the code segment into
// dst, zero-filling any portion past the end of the segment.
func (e *Executable) ReadCode(dst []byte, offset, n uint64) {
	readSegment(dst, e.code, offset, n)
}

// ReadData is ReadCode for the initialized-data segment.
func (e *Executable) ReadData(dst []byte, offset, n uint64) {
	readSegment(dst, e.data, offset, n)
}

func readSegment(dst, segment []byte, offset, n uint64) {
	for i := range dst[:n] {
		dst[i] = 0
	}
	if offset >= uint64(len(segment)) {
		return
	}
	avail := uint64(len(segment)) - offset
	if avail > n {
		avail = n
	}
	copy(dst[:avail], segment[offset:offset+avail])
}
