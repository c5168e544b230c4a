package marshaler

import (
	"bytes"

	"github.com/golang/protobuf/jsonpb"
	"github.com/golang/protobuf/proto"

	"github.com/brocaar/chirpstack-api/go/v3/gw"
)

// UnmarshalDownlinkFrame unmarshals a DownlinkFrame. The encoding is detected
// from the payload.
func UnmarshalDownlinkFrame(b []byte, df *gw.DownlinkFrame) (Type, error) {
	t := detect(b)

	switch t {
	case JSON:
		m := jsonpb.Unmarshaler{
			AllowUnknownFields: true,
		}
		return t, m.Unmarshal(bytes.NewReader(b), df)
	default:
		return t, proto.Unmarshal(b, df)
	}
}
