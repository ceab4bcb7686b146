// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pak_test

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/exp/mmap"

	"github.com/devblok/vizor/utility/pak"
)

var (
	testString1 = "idunvovkjnreovmegihjbrqlkmfrjnb"
	testString2 = "idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb"
)

func buildArchive(t *testing.T) []byte {
	builder := pak.NewBuilder(pak.Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	if err := builder.Add("test", []byte(testString1)); err != nil {
		t.Fatal(err)
	}
	if err := builder.Add("test2", []byte(testString2)); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if written, err := builder.WriteTo(&buf); err != nil {
		t.Fatal(err)
	} else {
		t.Logf("written %d", written)
	}
	return buf.Bytes()
}

func TestCreateAndRead(t *testing.T) {
	ar, err := pak.Open(bytes.NewReader(buildArchive(t)))
	if err != nil {
		t.Fatal(err)
	}

	f, err := ar.Open("test")
	if err != nil {
		t.Fatal(err)
	}

	result, err := ioutil.ReadAll(f)
	if err != nil {
		t.Error(err)
	}

	if strings.Compare(string(result), testString1) != 0 {
		t.Error("test string does not match up")
	}
}

func TestCreateAndReadAll(t *testing.T) {
	ar, err := pak.Open(bytes.NewReader(buildArchive(t)))
	if err != nil {
		t.Fatal(err)
	}

	if f, err := ar.ReadAll("test"); err != nil {
		t.Error(err)
	} else if strings.Compare(string(f), testString1) != 0 {
		t.Error("test string does not match up")
	}

	if f, err := ar.ReadAll("test2"); err != nil {
		t.Error(err)
	} else if strings.Compare(string(f), testString2) != 0 {
		t.Error("test string does not match up")
	}
}

func TestOpenmmap(t *testing.T) {
	dir, err := ioutil.TempDir("", "pak")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "opentest.pak")
	if err := ioutil.WriteFile(path, buildArchive(t), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := mmap.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ar, err := pak.Open(r)
	if err != nil {
		t.Fatal(err)
	}

	if f, err := ar.ReadAll("test2"); err != nil {
		t.Error(err)
	} else if strings.Compare(string(f), testString2) != 0 {
		t.Error("test string does not match up")
	}
}

func TestOpenRejectsForeignFile(t *testing.T) {
	if _, err := pak.Open(bytes.NewReader([]byte("GIF89a and then some more bytes to read past the header"))); err != pak.ErrFileFormat {
		t.Errorf("expected ErrFileFormat, got %v", err)
	}
}

func TestOpenMissingEntry(t *testing.T) {
	ar, err := pak.Open(bytes.NewReader(buildArchive(t)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ar.Open("nope"); err != pak.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
