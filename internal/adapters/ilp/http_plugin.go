package ilp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	portssvc "github.com/ilpaylabs/ilpay_backend/internal/core/ports/services"
)

// HTTPPlugin shuttles raw ILP packets to a connector over HTTP. It does not
// interpret packet contents; the payment executor owns the codec. Outgoing
// packets are POSTed to the connector; incoming packets arrive through
// HandleData, which the HTTP surface routes connector callbacks into.
type HTTPPlugin struct {
	connectorURL    string
	sourceAccountID string
	client          *http.Client

	mu        sync.RWMutex
	connected bool
	handler   func(ctx context.Context, data []byte) ([]byte, error)
}

// NewHTTPPlugin builds a plugin sourcing packets from sourceAccountID.
func NewHTTPPlugin(connectorURL, sourceAccountID string) *HTTPPlugin {
	return &HTTPPlugin{
		connectorURL:    connectorURL,
		sourceAccountID: sourceAccountID,
		client:          &http.Client{Timeout: 30 * time.Second},
	}
}

// NewPluginFactory returns a factory producing one plugin per payment attempt
// against the given connector.
func NewPluginFactory(connectorURL string) portssvc.PluginFactory {
	return func(sourceAccountID string) portssvc.IlpPlugin {
		return NewHTTPPlugin(connectorURL, sourceAccountID)
	}
}

var _ portssvc.IlpPlugin = (*HTTPPlugin)(nil)

func (p *HTTPPlugin) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.connectorURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build connector probe: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach connector: %w", err)
	}
	resp.Body.Close()

	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return nil
}

func (p *HTTPPlugin) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	p.connected = false
	p.handler = nil
	p.mu.Unlock()
	return nil
}

func (p *HTTPPlugin) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// SendData posts one raw packet and returns the raw reply packet.
func (p *HTTPPlugin) SendData(ctx context.Context, data []byte) ([]byte, error) {
	if !p.IsConnected() {
		return nil, fmt.Errorf("plugin is not connected")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.connectorURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build packet request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("ILP-Source-Account", p.sourceAccountID)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send packet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("connector returned status %d", resp.StatusCode)
	}
	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read reply packet: %w", err)
	}
	return reply, nil
}

func (p *HTTPPlugin) RegisterDataHandler(handler func(ctx context.Context, data []byte) ([]byte, error)) {
	p.mu.Lock()
	p.handler = handler
	p.mu.Unlock()
}

func (p *HTTPPlugin) DeregisterDataHandler() {
	p.mu.Lock()
	p.handler = nil
	p.mu.Unlock()
}

// HandleData feeds an incoming packet to the registered handler. Packets
// arriving with no handler registered are rejected rather than queued.
func (p *HTTPPlugin) HandleData(ctx context.Context, data []byte) ([]byte, error) {
	p.mu.RLock()
	handler := p.handler
	p.mu.RUnlock()
	if handler == nil {
		return nil, fmt.Errorf("no data handler registered")
	}
	return handler(ctx, data)
}
