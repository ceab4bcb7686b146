// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pak

import (
	"bytes"
	"testing"
	"time"
)

func TestAddAndWrite(t *testing.T) {
	builder := NewBuilder(Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})

	if err := builder.Add("test", []byte("idunvovkjnreovmegihjbrqlkmfrjnb")); err != nil {
		t.Error(err)
	}
	if err := builder.Add("test2", []byte("idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb")); err != nil {
		t.Error(err)
	}

	if len(builder.entries) != 2 {
		t.Error("incorrect number of entries present")
	}

	var buf bytes.Buffer
	num, err := builder.WriteTo(&buf)
	if err != nil {
		t.Error(err)
	}
	if int64(buf.Len()) != num {
		t.Error("written count does not match buffer size")
	}
	t.Logf("written %d \n", num)
}

func TestWriteComputesOffsets(t *testing.T) {
	builder := NewBuilder(Header{Version: 1})
	builder.Add("first", bytes.Repeat([]byte("abcd"), 64))
	builder.Add("second", []byte("tail"))

	var buf bytes.Buffer
	if _, err := builder.WriteTo(&buf); err != nil {
		t.Error(err)
	}

	ar, err := Open(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Error(err)
	}

	index := ar.Index()
	if len(index) != 2 {
		t.Fatal("incorrect index length")
	}
	if index[0].Offset != 0 {
		t.Error("first entry must start the data section")
	}
	if index[1].Offset != index[0].CompressedSize {
		t.Error("second entry must follow the first")
	}
}
