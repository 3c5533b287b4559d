package client

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"

	"rterm/pkg/config"
	"rterm/pkg/secure"
	"rterm/pkg/terminal"
)

// ClientIDHeader identifies one client instance to the server so it can
// route events for processes this client attached to.
const ClientIDHeader = "X-Rterm-Client-Id"

// Client talks to the rterm terminal service. It creates and reattaches
// remote processes and provides the server's public key.
type Client struct {
	config     *config.Config
	endpoint   string
	clientID   string
	httpClient *http.Client

	startTerminal       *connect.Client[StartTerminalRequest, StartTerminalResponse]
	start               *connect.Client[HandleRequest, Empty]
	writeInput          *connect.Client[WriteInputRequest, Empty]
	resize              *connect.Client[ResizeRequest, Empty]
	interrupt           *connect.Client[HandleRequest, Empty]
	reap                *connect.Client[HandleRequest, Empty]
	getTerminalBuffer   *connect.Client[HandleRequest, TerminalBufferResponse]
	eraseTerminalBuffer *connect.Client[HandleRequest, Empty]
	getPublicKey        *connect.Client[PublicKeyRequest, PublicKeyResponse]
}

var (
	_ terminal.ProcessFactory = (*Client)(nil)
	_ secure.KeySource        = (*Client)(nil)
)

func New(cfg *config.Config) *Client {
	return NewWithHTTPClient(cfg, newHTTPClient(cfg.Server.H2C))
}

// NewWithHTTPClient is New with a caller-supplied HTTP client.
func NewWithHTTPClient(cfg *config.Config, httpClient *http.Client) *Client {
	endpoint := strings.TrimSuffix(cfg.Server.Endpoint, "/")
	opts := []connect.ClientOption{connect.WithCodec(jsonCodec{})}

	return &Client{
		config:     cfg,
		endpoint:   endpoint,
		clientID:   uuid.New().String(),
		httpClient: httpClient,

		startTerminal:       connect.NewClient[StartTerminalRequest, StartTerminalResponse](httpClient, endpoint+StartTerminalProcedure, opts...),
		start:               connect.NewClient[HandleRequest, Empty](httpClient, endpoint+StartProcedure, opts...),
		writeInput:          connect.NewClient[WriteInputRequest, Empty](httpClient, endpoint+WriteInputProcedure, opts...),
		resize:              connect.NewClient[ResizeRequest, Empty](httpClient, endpoint+ResizeProcedure, opts...),
		interrupt:           connect.NewClient[HandleRequest, Empty](httpClient, endpoint+InterruptProcedure, opts...),
		reap:                connect.NewClient[HandleRequest, Empty](httpClient, endpoint+ReapProcedure, opts...),
		getTerminalBuffer:   connect.NewClient[HandleRequest, TerminalBufferResponse](httpClient, endpoint+GetTerminalBufferProcedure, opts...),
		eraseTerminalBuffer: connect.NewClient[HandleRequest, Empty](httpClient, endpoint+EraseTerminalBufferProcedure, opts...),
		getPublicKey:        connect.NewClient[PublicKeyRequest, PublicKeyResponse](httpClient, endpoint+GetPublicKeyProcedure, opts...),
	}
}

func newHTTPClient(h2c bool) *http.Client {
	if !h2c {
		return &http.Client{}
	}
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
				// Plain TCP for HTTP/2 without TLS
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}

// ClientID returns the identifier sent with every request.
func (c *Client) ClientID() string {
	return c.clientID
}

// StartTerminal creates a terminal process, or locates the existing one when
// req.Handle is set.
func (c *Client) StartTerminal(ctx context.Context, req terminal.StartRequest) (terminal.Process, error) {
	if err := CheckToken(c.config.Auth.Token); err != nil {
		return nil, err
	}

	r := connect.NewRequest(&StartTerminalRequest{
		Cols:     req.Cols,
		Rows:     req.Rows,
		Handle:   req.Handle,
		Caption:  req.Caption,
		Title:    req.Title,
		Sequence: req.Sequence,
	})
	c.addHeaders(r)

	resp, err := c.startTerminal.CallUnary(ctx, r)
	if err != nil {
		return nil, wrapError("start terminal", err)
	}
	if resp.Msg.Process == nil {
		return nil, nil
	}

	log.Debug().
		Str("handle", resp.Msg.Process.Handle).
		Str("interaction_mode", resp.Msg.Process.InteractionMode).
		Msg("Terminal process ready")

	return &RemoteProcess{client: c, info: *resp.Msg.Process}, nil
}

// PublicKey fetches the server's input encryption key.
func (c *Client) PublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	r := connect.NewRequest(&PublicKeyRequest{})
	c.addHeaders(r)

	resp, err := c.getPublicKey.CallUnary(ctx, r)
	if err != nil {
		return nil, wrapError("get public key", err)
	}
	return secure.ParsePublicKey([]byte(resp.Msg.PEM))
}

func (c *Client) callHandle(ctx context.Context, op string, rpc *connect.Client[HandleRequest, Empty], handle string) error {
	r := connect.NewRequest(&HandleRequest{Handle: handle})
	c.addHeaders(r)

	if _, err := rpc.CallUnary(ctx, r); err != nil {
		return wrapError(op, err)
	}
	return nil
}

func (c *Client) addHeaders(req connect.AnyRequest) {
	addAuthHeaders(req, c.config.Auth.Token)
	req.Header().Set(ClientIDHeader, c.clientID)
}

func addAuthHeaders(req connect.AnyRequest, token string) {
	if token != "" {
		req.Header().Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}
}
