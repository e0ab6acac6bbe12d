package comm

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// Encode serializes a payload. The bytes share no memory with v.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.New("payload encoding failed").
			WithType(ErrTypeCommunication).
			Wrap(err)
	}
	return data, nil
}

func Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.New("payload decoding failed").
			WithType(ErrTypeCommunication).
			WithTag("bytes", len(data)).
			Wrap(err)
	}
	return nil
}
