package classify

// Map control tokens understood by the web client.
const (
	CmdZoomIn         = "ZOOM_IN"
	CmdZoomOut        = "ZOOM_OUT"
	CmdPanUp          = "PAN_UP"
	CmdPanDown        = "PAN_DOWN"
	CmdPanLeft        = "PAN_LEFT"
	CmdPanRight       = "PAN_RIGHT"
	CmdPitchUp        = "PITCH_UP"
	CmdPitchDown      = "PITCH_DOWN"
	CmdStyleSatellite = "STYLE_SATELLITE"
	CmdStyleStreets   = "STYLE_STREETS"
)

var commandTokens = []string{
	CmdZoomIn, CmdZoomOut,
	CmdPanUp, CmdPanDown, CmdPanLeft, CmdPanRight,
	CmdPitchUp, CmdPitchDown,
	CmdStyleSatellite, CmdStyleStreets,
}

// CommandTokens returns the vocabulary in prompt order.
func CommandTokens() []string {
	out := make([]string, len(commandTokens))
	copy(out, commandTokens)
	return out
}

// IsKnownCommand reports whether token is part of the vocabulary. Unknown
// tokens are still forwarded; the client ignores what it cannot handle.
func IsKnownCommand(token string) bool {
	for _, t := range commandTokens {
		if t == token {
			return true
		}
	}
	return false
}
