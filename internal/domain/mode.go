// Package domain contains entity without logic, just meta-data
package domain

// VideoMode is the logical source of the outbound video channel.
type VideoMode int

const (
	VideoDisabled VideoMode = iota
	VideoCamera
	VideoScreenShare
)

func (m VideoMode) String() string {
	switch m {
	case VideoCamera:
		return "camera"
	case VideoScreenShare:
		return "screen"
	default:
		return "disabled"
	}
}

// Active is what the mode announcement carries.
func (m VideoMode) Active() bool { return m != VideoDisabled }
