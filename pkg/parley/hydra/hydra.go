// Package hydra converts between the two identifier encodings the platform
// exposes: the bare hyphenated UUIDs found inside realtime event payloads,
// and the base64 "Hydra" form the REST lookup API expects. Hydra IDs embed
// a geo-routing prefix, so the two forms are not interchangeable on the wire.
package hydra

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Prefix is the fixed geo-routing prefix embedded in every encoded ID.
const Prefix = "ciscospark://us"

// IDType is the resource type tag embedded in an encoded ID.
type IDType string

const (
	TypeMessage          IDType = "MESSAGE"
	TypeAttachmentAction IDType = "ATTACHMENT_ACTION"
)

// Encode converts a bare UUID into its Hydra form for the given resource
// type. Inputs that contain no hyphen are assumed to already be Hydra-encoded
// and are returned unchanged; the hyphen test is the platform's own
// convention for telling the two forms apart.
func Encode(typ IDType, raw string) string {
	if !strings.Contains(raw, "-") {
		return raw
	}
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s/%s/%s", Prefix, typ, raw)))
}

// EncodeMessageID converts a raw message activity id into the form accepted
// by the message lookup API.
func EncodeMessageID(raw string) string {
	return Encode(TypeMessage, raw)
}
