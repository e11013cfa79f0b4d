package cache

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns loader results into the bytes kept in the Store and back.
// A decoded hit must be indistinguishable from a fresh load for consumers.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// CodecByName resolves a codec from configuration.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecMsgpack:
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown cache codec %q", name)
	}
}

// JSONCodec stores values as JSON, the same shape the HTTP layer returns.
type JSONCodec struct{}

func (JSONCodec) Name() string { return CodecJSON }

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// MsgpackCodec stores values as msgpack. It reads json struct tags so the
// same model types work with either codec.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return CodecMsgpack }

func (MsgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (MsgpackCodec) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}
