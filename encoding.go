package revdb

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

type encodingMethod int

const (
	MsgPack encodingMethod = iota
	JSON
	PrettyJSON

	defaultValueEncoding = MsgPack
)

func (enc encodingMethod) String() string {
	switch enc {
	case MsgPack:
		return "msgpack"
	case JSON:
		return "json"
	case PrettyJSON:
		return "pretty-json"
	default:
		return fmt.Sprintf("encoding(%d)", int(enc))
	}
}

func (enc encodingMethod) EncodeValue(buf []byte, obj any) ([]byte, error) {
	switch enc {
	case MsgPack:
		bb := bytesBuilder{buf}
		enc := msgpack.GetEncoder()
		enc.Reset(&bb)
		enc.SetSortMapKeys(true)
		err := enc.Encode(obj)
		msgpack.PutEncoder(enc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %T using MsgPack: %w", obj, err)
		}
		return bb.Buf, nil
	case JSON, PrettyJSON:
		var raw []byte
		var err error
		if enc == PrettyJSON {
			raw, err = json.MarshalIndent(obj, "", "  ")
		} else {
			raw, err = json.Marshal(obj)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to encode %T to JSON: %w", obj, err)
		}
		return appendRaw(buf, raw), nil
	default:
		panic("unsupported encoding")
	}
}

func (enc encodingMethod) DecodeValue(buf []byte, objPtr any) error {
	switch enc {
	case MsgPack:
		var r bytes.Reader
		r.Reset(buf)
		dec := msgpack.GetDecoder()
		dec.Reset(&r)
		err := dec.Decode(objPtr)
		msgpack.PutDecoder(dec)
		if err != nil {
			return dataErrf(buf, 0, err, "failed to decode msgpack into %T", objPtr)
		}
		return nil
	case JSON, PrettyJSON:
		err := json.Unmarshal(buf, objPtr)
		if err != nil {
			return dataErrf(buf, 0, err, "failed to decode JSON into %T", objPtr)
		}
		return nil
	default:
		panic("unsupported encoding")
	}
}

func mustEncode(enc encodingMethod, obj any) []byte {
	return must(enc.EncodeValue(nil, obj))
}
