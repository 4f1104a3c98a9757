// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package state

import (
	"bytes"
	"encoding/binary"
)

// key kinds
const (
	valueKind    byte = 'v'
	elementKind  byte = 'l'
	sequenceKind byte = 'n'
)

// GroupingKey is the key all state operations of one group of rows are scoped to.
// The zero value is the unset key, which every state operation rejects.
type GroupingKey struct {
	key []byte
	set bool
}

// NewGroupingKey returns a set grouping key. An empty key is a valid key.
func NewGroupingKey(key []byte) GroupingKey {
	if key == nil {
		key = []byte{}
	}
	return GroupingKey{key: bytes.Clone(key), set: true}
}

// IsSet reports whether the key was set.
func (k GroupingKey) IsSet() bool {
	return k.set
}

// Bytes returns the raw key.
func (k GroupingKey) Bytes() []byte {
	return k.key
}

// stateKey builds kind | uvarint(len(name)) | name | uvarint(len(key)) | key.
// Length prefixes keep the keys of distinct (name, grouping key) pairs from
// sharing a prefix.
func stateKey(kind byte, name string, key GroupingKey) []byte {
	out := make([]byte, 0, 1+2*binary.MaxVarintLen64+len(name)+len(key.key)+8)
	out = append(out, kind)
	out = binary.AppendUvarint(out, uint64(len(name)))
	out = append(out, name...)
	out = binary.AppendUvarint(out, uint64(len(key.key)))
	return append(out, key.key...)
}

// elementKey appends the big endian sequence number so list elements sort in
// insertion order.
func elementKey(prefix []byte, seq uint64) []byte {
	out := make([]byte, 0, len(prefix)+8)
	out = append(out, prefix...)
	return binary.BigEndian.AppendUint64(out, seq)
}

func encodeSequence(seq uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, seq)
}

func decodeSequence(raw []byte) uint64 {
	return binary.BigEndian.Uint64(raw)
}
