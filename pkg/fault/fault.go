// Package fault defines the error taxonomy shared by the teach-and-replay
// engine. Components wrap these sentinels with fmt.Errorf("%w: ...") so the
// controlling layer can classify any failure with KindOf.
package fault

import "errors"

var (
	ErrConnection       = errors.New("actuator session unavailable")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrBusy             = errors.New("busy")
	ErrFormat           = errors.New("malformed gesture")
	ErrUnsupported      = errors.New("capability not supported")
	ErrCommand          = errors.New("actuator command failed")
	ErrEmpty            = errors.New("empty")
)

// Kind classifies an error into one of the taxonomy buckets.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnection
	KindInvalidParameter
	KindBusy
	KindFormat
	KindUnsupported
	KindCommand
	KindEmpty
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrConnection, KindConnection},
	{ErrInvalidParameter, KindInvalidParameter},
	{ErrBusy, KindBusy},
	{ErrFormat, KindFormat},
	{ErrUnsupported, KindUnsupported},
	{ErrCommand, KindCommand},
	{ErrEmpty, KindEmpty},
}

// KindOf returns the first taxonomy bucket err matches, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "ConnectionError"
	case KindInvalidParameter:
		return "InvalidParameter"
	case KindBusy:
		return "Busy"
	case KindFormat:
		return "FormatError"
	case KindUnsupported:
		return "UnsupportedCapability"
	case KindCommand:
		return "ActuatorCommandFailure"
	case KindEmpty:
		return "Empty"
	default:
		return "Unknown"
	}
}
