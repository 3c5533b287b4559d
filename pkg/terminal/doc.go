// Package terminal implements the client side of a remote terminal session.
//
// A Session binds a local display to a shell process managed by the rterm
// server. It creates or reattaches the process, paces keystrokes through a
// size-limited secure channel, and reconciles local state with process exit,
// suspend, resize, and title notifications.
//
// # ARCHITECTURE
//
//	Display (stdin/stdout) ↔ events.Bus ↔ Session ↔ Encoder ↔ Process (Connect RPC) ↔ Server
//
// Key components:
//   - Session: connection state machine (Idle, Connecting, Connected)
//   - InputChunker: splits buffered keystrokes into transport-safe chunks
//   - Event routing: keyed bus subscriptions owned by the session
//   - Process and ProcessFactory: the remote process, provided by pkg/client
//
// # CONNECTION LIFECYCLE
//
//	Idle --Connect--> Connecting --start acknowledged--> Connected
//	Connecting --create/start failed, unsupported mode--> Idle (error on display)
//	Connected --process exit--> Idle (reap, session stopped)
//	Connected --suspend--> Idle (process kept on the server, input kept)
//	Any --Detach--> Idle (terminal, all subscriptions released)
//
// A keystroke that arrives while Idle is buffered and triggers Connect.
// TerminalReady during an attach defers the buffer replay until the process
// has started.
// Calling Connect while Connecting or Connected does nothing.
//
// # INPUT DELIVERY
//
// Keystrokes accumulate in a pending buffer. The session takes at most
// ChunkSize bytes from its head, cut on a UTF-8 boundary, encodes them, and
// writes the ciphertext to the process. The next chunk is sent only after the
// previous write is acknowledged, so the server always sees input in typing
// order. A failed encode or write discards that chunk, since the server may
// already have applied it, reports the error on the display, and stops
// draining. The rest of the buffer is kept for the next keystroke.
//
// ChunkSize defaults to 117 bytes, the PKCS#1 v1.5 payload limit of a
// 1024-bit RSA key.
//
// # THREAD SAFETY
//
// Every state change runs on a per-session event loop. Remote calls run on
// their own goroutines and post completions back to the loop; completions
// that arrive after a disconnect or Detach are discarded. Accessors such as
// State and Handle may be called from any goroutine.
package terminal
