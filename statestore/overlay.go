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

package statestore

import (
	"bytes"

	"github.com/google/btree"
)

const btreeDegree = 16

type item struct {
	key     []byte
	value   []byte
	deleted bool
}

func lessItem(a, b item) bool {
	return bytes.Compare(a.key, b.key) < 0
}

func newTree() *btree.BTreeG[item] {
	return btree.NewG(btreeDegree, lessItem)
}

// overlay buffers the pending writes of a session in key order. Deletions are
// kept as tombstones so they shadow the committed view.
type overlay struct {
	tree *btree.BTreeG[item]
}

func newOverlay() *overlay {
	return &overlay{tree: newTree()}
}

func (o *overlay) put(key, value []byte) {
	o.tree.ReplaceOrInsert(item{key: bytes.Clone(key), value: cloneValue(value)})
}

func (o *overlay) delete(key []byte) {
	o.tree.ReplaceOrInsert(item{key: bytes.Clone(key), deleted: true})
}

// get returns the pending write for key, if any.
func (o *overlay) get(key []byte) (item, bool) {
	return o.tree.Get(item{key: key})
}

func (o *overlay) len() int {
	return o.tree.Len()
}

// ascend calls fn for every pending write in key order, tombstones included.
func (o *overlay) ascend(fn func(item) error) error {
	var err error
	o.tree.Ascend(func(it item) bool {
		err = fn(it)
		return err == nil
	})
	return err
}

// ascendPrefix returns the pending writes of keys starting with prefix.
func (o *overlay) ascendPrefix(prefix []byte) []item {
	var items []item
	o.tree.AscendGreaterOrEqual(item{key: prefix}, func(it item) bool {
		if !bytes.HasPrefix(it.key, prefix) {
			return false
		}
		items = append(items, it)
		return true
	})
	return items
}

// merge walks committed and pending entries of one prefix in key order. Pending
// entries win over committed ones and tombstones hide them.
func merge(committed, pending []item, fn func(key, value []byte) error) error {
	i, j := 0, 0
	for i < len(committed) || j < len(pending) {
		var next item
		switch {
		case j == len(pending):
			next = committed[i]
			i++
		case i == len(committed):
			next = pending[j]
			j++
		default:
			switch cmp := bytes.Compare(committed[i].key, pending[j].key); {
			case cmp < 0:
				next = committed[i]
				i++
			case cmp > 0:
				next = pending[j]
				j++
			default:
				next = pending[j]
				i++
				j++
			}
		}

		if next.deleted {
			continue
		}
		if err := fn(next.key, next.value); err != nil {
			return err
		}
	}
	return nil
}

// cloneValue copies value and never returns nil, so that an empty value stays present.
func cloneValue(value []byte) []byte {
	if value == nil {
		return []byte{}
	}
	return bytes.Clone(value)
}
