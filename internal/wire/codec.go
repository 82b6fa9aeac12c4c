// SPDX-License-Identifier: MIT
package wire

import (
	"encoding/binary"
	"fmt"
)

// encodeString writes a length-prefixed (uint32 LE) string.
func encodeString(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, s...)
	return buf
}

func decodeString(b []byte) (string, []byte, error) {
	if len(b) < 4 {
		return "", nil, fmt.Errorf("wire: truncated string length")
	}
	n := binary.LittleEndian.Uint32(b[:4])
	b = b[4:]
	if uint64(len(b)) < uint64(n) {
		return "", nil, fmt.Errorf("wire: truncated string body")
	}
	return string(b[:n]), b[n:], nil
}

func encodeInt32(buf []byte, v int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return append(buf, b[:]...)
}

func decodeInt32(b []byte) (int32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, fmt.Errorf("wire: truncated int32")
	}
	return int32(binary.LittleEndian.Uint32(b[:4])), b[4:], nil
}

// EncodeUpdate serializes an UpdatePayload.
func EncodeUpdate(p UpdatePayload) []byte {
	buf := make([]byte, 0, 12+len(p.Error))
	buf = encodeInt32(buf, p.Status)
	buf = encodeInt32(buf, p.FailoverDelay)
	buf = encodeString(buf, p.Error)
	return buf
}

// DecodeUpdate parses an UpdatePayload.
func DecodeUpdate(b []byte) (UpdatePayload, error) {
	var p UpdatePayload
	var err error
	if p.Status, b, err = decodeInt32(b); err != nil {
		return p, err
	}
	if p.FailoverDelay, b, err = decodeInt32(b); err != nil {
		return p, err
	}
	if p.Error, _, err = decodeString(b); err != nil {
		return p, err
	}
	return p, nil
}

func EncodeRemoveNode(p RemoveNodePayload) []byte {
	return encodeInt32(nil, p.Index)
}

func DecodeRemoveNode(b []byte) (RemoveNodePayload, error) {
	var p RemoveNodePayload
	var err error
	p.Index, _, err = decodeInt32(b)
	return p, err
}

func EncodeSetFailoverDelay(p SetFailoverDelayPayload) []byte {
	return encodeInt32(nil, p.Delay)
}

func DecodeSetFailoverDelay(b []byte) (SetFailoverDelayPayload, error) {
	var p SetFailoverDelayPayload
	var err error
	p.Delay, _, err = decodeInt32(b)
	return p, err
}

func EncodeErrorReply(p ErrorReply) []byte {
	return encodeString(nil, p.Error)
}

func DecodeErrorReply(b []byte) (ErrorReply, error) {
	var p ErrorReply
	var err error
	p.Error, _, err = decodeString(b)
	return p, err
}

func EncodeNodesReply(p NodesReply) []byte {
	buf := encodeInt32(nil, p.OK)
	return encodeString(buf, p.Body)
}

func DecodeNodesReply(b []byte) (NodesReply, error) {
	var p NodesReply
	var err error
	if p.OK, b, err = decodeInt32(b); err != nil {
		return p, err
	}
	p.Body, _, err = decodeString(b)
	return p, err
}
