package client

// Terminal service procedures.
const (
	ServiceName = "rterm.v1.TerminalService"

	StartTerminalProcedure       = "/" + ServiceName + "/StartTerminal"
	StartProcedure               = "/" + ServiceName + "/Start"
	WriteInputProcedure          = "/" + ServiceName + "/WriteInput"
	ResizeProcedure              = "/" + ServiceName + "/Resize"
	InterruptProcedure           = "/" + ServiceName + "/Interrupt"
	ReapProcedure                = "/" + ServiceName + "/Reap"
	GetTerminalBufferProcedure   = "/" + ServiceName + "/GetTerminalBuffer"
	EraseTerminalBufferProcedure = "/" + ServiceName + "/EraseTerminalBuffer"
	GetPublicKeyProcedure        = "/" + ServiceName + "/GetPublicKey"
)

// Interaction modes reported in ProcessInfo.
const (
	InteractionNever    = "never"
	InteractionPossible = "possible"
	InteractionAlways   = "always"
)

type StartTerminalRequest struct {
	Cols     int    `json:"cols"`
	Rows     int    `json:"rows"`
	Handle   string `json:"handle,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Title    string `json:"title,omitempty"`
	Sequence int    `json:"sequence"`
}

type ProcessInfo struct {
	Handle          string `json:"handle"`
	Caption         string `json:"caption,omitempty"`
	Title           string `json:"title,omitempty"`
	InteractionMode string `json:"interaction_mode"`
	HasChildProcs   bool   `json:"has_child_procs,omitempty"`
}

type StartTerminalResponse struct {
	Process *ProcessInfo `json:"process,omitempty"`
}

type HandleRequest struct {
	Handle string `json:"handle"`
}

type WriteInputRequest struct {
	Handle string `json:"handle"`
	// Input is the encoded chunk as produced by the client's encoder.
	Input string `json:"input"`
	// Interactive input is echoed by the remote PTY.
	Interactive bool `json:"interactive"`
}

type ResizeRequest struct {
	Handle string `json:"handle"`
	Cols   int    `json:"cols"`
	Rows   int    `json:"rows"`
}

type TerminalBufferResponse struct {
	Buffer string `json:"buffer"`
}

type PublicKeyRequest struct{}

type PublicKeyResponse struct {
	// PEM is the server's RSA public key in PKIX or PKCS#1 PEM form.
	PEM string `json:"pem"`
}

type Empty struct{}
