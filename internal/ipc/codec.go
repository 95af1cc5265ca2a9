package ipc

import (
	"github.com/fxamacker/cbor/v2"
)

// EncodeRequest serializes a Request to its wire payload. CBOR is a
// data-only encoding: decoding never constructs arbitrary Go types or
// invokes code, which is the property spec §9's design note demands of
// whatever replaces the original object-pickle format.
func EncodeRequest(req *Request) ([]byte, error) {
	return cbor.Marshal(req)
}

// DecodeRequest parses a wire payload into a Request.
func DecodeRequest(payload []byte) (*Request, error) {
	var req Request
	if err := cbor.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// EncodeResponse serializes a Response to its wire payload.
func EncodeResponse(resp *Response) ([]byte, error) {
	return cbor.Marshal(resp)
}

// DecodeResponse parses a wire payload into a Response.
func DecodeResponse(payload []byte) (*Response, error) {
	var resp Response
	if err := cbor.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
