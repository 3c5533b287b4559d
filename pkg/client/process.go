package client

import (
	"context"

	"connectrpc.com/connect"

	"rterm/pkg/terminal"
)

// RemoteProcess is a server-side terminal process.
type RemoteProcess struct {
	client *Client
	info   ProcessInfo
}

var _ terminal.Process = (*RemoteProcess)(nil)

func (p *RemoteProcess) Handle() string {
	return p.info.Handle
}

func (p *RemoteProcess) InteractionMode() terminal.InteractionMode {
	switch p.info.InteractionMode {
	case InteractionAlways:
		return terminal.InteractionAlways
	case InteractionPossible:
		return terminal.InteractionPossible
	default:
		return terminal.InteractionNever
	}
}

func (p *RemoteProcess) Start(ctx context.Context) error {
	return p.client.callHandle(ctx, "start process", p.client.start, p.info.Handle)
}

func (p *RemoteProcess) WriteInput(ctx context.Context, input string) error {
	r := connect.NewRequest(&WriteInputRequest{
		Handle:      p.info.Handle,
		Input:       input,
		Interactive: true,
	})
	p.client.addHeaders(r)

	if _, err := p.client.writeInput.CallUnary(ctx, r); err != nil {
		return wrapError("write input", err)
	}
	return nil
}

func (p *RemoteProcess) Resize(ctx context.Context, cols, rows int) error {
	r := connect.NewRequest(&ResizeRequest{
		Handle: p.info.Handle,
		Cols:   cols,
		Rows:   rows,
	})
	p.client.addHeaders(r)

	if _, err := p.client.resize.CallUnary(ctx, r); err != nil {
		return wrapError("resize terminal", err)
	}
	return nil
}

func (p *RemoteProcess) Interrupt(ctx context.Context) error {
	return p.client.callHandle(ctx, "interrupt process", p.client.interrupt, p.info.Handle)
}

func (p *RemoteProcess) Reap(ctx context.Context) error {
	return p.client.callHandle(ctx, "reap process", p.client.reap, p.info.Handle)
}

func (p *RemoteProcess) TerminalBuffer(ctx context.Context) (string, error) {
	r := connect.NewRequest(&HandleRequest{Handle: p.info.Handle})
	p.client.addHeaders(r)

	resp, err := p.client.getTerminalBuffer.CallUnary(ctx, r)
	if err != nil {
		return "", wrapError("get terminal buffer", err)
	}
	return resp.Msg.Buffer, nil
}

func (p *RemoteProcess) EraseBuffer(ctx context.Context) error {
	return p.client.callHandle(ctx, "erase terminal buffer", p.client.eraseTerminalBuffer, p.info.Handle)
}
