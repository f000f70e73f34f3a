package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Command/query layer.
	ErrBadRequest         = "E_BAD_REQUEST"
	ErrNotFound           = "E_NOT_FOUND"
	ErrUnavailable        = "E_UNAVAILABLE"
	ErrUnsupportedVersion = "E_UNSUPPORTED_VERSION"
	ErrInternal           = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:    {},
	ErrBadRequest:         {},
	ErrNotFound:           {},
	ErrUnavailable:        {},
	ErrUnsupportedVersion: {},
	ErrInternal:           {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
