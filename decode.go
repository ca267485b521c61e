package tangguh

import (
	"encoding/json"
	"fmt"
)

// DecodeJSON unmarshals a response body into v. Failures are reported as a
// Decode ClientError carrying the response status code, so callers can
// distinguish malformed payloads from transport problems with errors.As.
func DecodeJSON(resp *Response, v interface{}) error {
	if resp == nil {
		return newClientError(ErrorTypeDecode, "cannot decode nil response", nil)
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		ce := newClientError(ErrorTypeDecode,
			fmt.Sprintf("decoding response body: %v", err), err)
		ce.StatusCode = resp.StatusCode
		return ce
	}
	return nil
}
