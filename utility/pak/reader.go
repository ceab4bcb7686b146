// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pak

import (
	"bytes"
	"io"
	"io/ioutil"

	"github.com/pierrec/lz4"
)

// Open opens the pak archive from r. It checks the file is actually a
// pak archive and reads the whole index up front, so entries can be
// located without scanning.
func Open(r io.ReaderAt) (*Archive, error) {
	magicBytes := make([]byte, MagicLength)
	if num, err := r.ReadAt(magicBytes, 0); err != nil {
		return nil, err
	} else if num < MagicLength || !bytes.Equal(magicBytes, magic[:]) {
		return nil, ErrFileFormat
	}

	headerSizeBytes := make([]byte, HeaderSizeNumberLength)
	if num, err := r.ReadAt(headerSizeBytes, MagicLength); err != nil {
		return nil, err
	} else if num < HeaderSizeNumberLength {
		return nil, ErrFileFormat
	}

	headerSize, err := binaryToInt64(headerSizeBytes)
	if err != nil || headerSize <= 0 {
		return nil, ErrFileFormat
	}

	headerBytes := make([]byte, headerSize)
	if num, err := r.ReadAt(headerBytes, MagicLength+HeaderSizeNumberLength); err != nil {
		return nil, err
	} else if int64(num) < headerSize {
		return nil, ErrFileFormat
	}

	var header Header
	if err := gobDecode(&header, headerBytes); err != nil {
		return nil, ErrFileFormat
	}

	return &Archive{
		reader:    r,
		header:    header,
		dataStart: MagicLength + HeaderSizeNumberLength + headerSize,
	}, nil
}

// Archive provides concurrent reads from a pak file, one decompressing
// Reader per entry.
type Archive struct {
	reader    io.ReaderAt
	header    Header
	dataStart int64
}

// Index returns the archive's entry index.
func (a *Archive) Index() []IndexEntry {
	return a.header.Index
}

func (a *Archive) find(name string) (IndexEntry, bool) {
	for _, entry := range a.header.Index {
		if entry.Name == name {
			return entry, true
		}
	}
	return IndexEntry{}, false
}

// Open returns a Reader for an entry in the Archive.
func (a *Archive) Open(name string) (*Reader, error) {
	entry, ok := a.find(name)
	if !ok {
		return nil, ErrNotFound
	}

	section := io.NewSectionReader(a.reader, a.dataStart+entry.Offset, entry.CompressedSize)
	return &Reader{
		decompressor: lz4.NewReader(section),
		remaining:    entry.Size,
	}, nil
}

// ReadAll returns the entire decompressed contents of a named entry.
func (a *Archive) ReadAll(name string) ([]byte, error) {
	r, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	return ioutil.ReadAll(r)
}

// Reader decompresses a single entry on the fly.
type Reader struct {
	decompressor io.Reader
	remaining    int64
}

// Read reads already decompressed data.
func (r *Reader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := r.decompressor.Read(p)
	r.remaining -= int64(n)
	if err == io.EOF && r.remaining > 0 {
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}
