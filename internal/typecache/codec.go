package typecache

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// record is the on-disk shape: serialized id -> null | importer.
type record map[string]*string

type codec interface {
	encode(record) ([]byte, error)
	decode([]byte) (record, error)
}

func codecFor(path string) codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp", ".msgpack":
		return msgpackCodec{}
	default:
		return jsonCodec{}
	}
}

type jsonCodec struct{}

func (jsonCodec) encode(r record) ([]byte, error) {
	// encoding/json writes map keys sorted.
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (jsonCodec) decode(data []byte) (record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return record{}, nil
	}
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return r, nil
}

type msgpackCodec struct{}

func (msgpackCodec) encode(r record) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	// Keys are written by hand in sorted order so equal records encode to
	// equal bytes.
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if err := enc.EncodeMapLen(len(keys)); err != nil {
		return nil, err
	}
	for _, k := range keys {
		if err := enc.EncodeString(k); err != nil {
			return nil, err
		}
		v := r[k]
		var err error
		if v == nil {
			err = enc.EncodeNil()
		} else {
			err = enc.EncodeString(*v)
		}
		if err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) decode(data []byte) (record, error) {
	if len(data) == 0 {
		return record{}, nil
	}
	var r map[string]*string
	if err := msgpack.NewDecoder(bytes.NewReader(data)).Decode(&r); err != nil {
		return nil, err
	}
	return record(r), nil
}
