// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pak

import (
	"bytes"
	"io"
	"sync"

	"github.com/pierrec/lz4"
)

// NewBuilder creates a new Builder. Do not fill the Index in the
// header, it is computed when the archive is written out.
func NewBuilder(header Header) *Builder {
	header.Index = nil
	return &Builder{
		header: header,
	}
}

type pendingEntry struct {
	name       string
	size       int64
	compressed []byte
}

// Builder assembles a pak archive in memory. Entries are compressed as
// they are added; WriteTo lays out the index and the data section.
// Safe to Add from multiple goroutines.
type Builder struct {
	header Header

	mutex   sync.Mutex
	entries []pendingEntry
}

// Add appends data to the builder under the given name. Blocks until
// lz4 finishes compressing the entry.
func (b *Builder) Add(name string, data []byte) error {
	var compressed bytes.Buffer
	writer := lz4.NewWriter(&compressed)
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.entries = append(b.entries, pendingEntry{
		name:       name,
		size:       int64(len(data)),
		compressed: compressed.Bytes(),
	})
	return nil
}

// WriteTo bundles everything added so far into a ready to use archive.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	header := b.header
	var offset int64
	for _, entry := range b.entries {
		header.Index = append(header.Index, IndexEntry{
			Name:           entry.name,
			Offset:         offset,
			Size:           entry.size,
			CompressedSize: int64(len(entry.compressed)),
		})
		offset += int64(len(entry.compressed))
	}

	rawHeader, err := gobEncode(header)
	if err != nil {
		return 0, err
	}

	var written int64
	n, err := w.Write(magic[:])
	written += int64(n)
	if err != nil {
		return written, err
	}
	n, err = w.Write(int64ToBinary(int64(len(rawHeader))))
	written += int64(n)
	if err != nil {
		return written, err
	}
	n, err = w.Write(rawHeader)
	written += int64(n)
	if err != nil {
		return written, err
	}
	for _, entry := range b.entries {
		n, err = w.Write(entry.compressed)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
