package integration_test

import (
	"bytes"
	"context"
	"echonet-node/client"
	"echonet-node/echonet_lite"
	"echonet-node/echonet_lite/handler"
	"echonet-node/protocol"
	"echonet-node/server"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubNode は WebSocket サーバーに渡すノードの代わり
type stubNode struct {
	mu        sync.Mutex
	searches  int
	searchErr error
	nodes     []handler.NodeSnapshot
	onProp    []handler.PropertyObserver
	onDevice  []handler.DeviceObserver
}

func (n *stubNode) Search(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.searches++
	return n.searchErr
}

func (n *stubNode) ListNodes(ctx context.Context) ([]handler.NodeSnapshot, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nodes, nil
}

func (n *stubNode) OnProperty(fn handler.PropertyObserver) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onProp = append(n.onProp, fn)
}

func (n *stubNode) OnDeviceEvent(fn handler.DeviceObserver) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onDevice = append(n.onDevice, fn)
}

func (n *stubNode) emitProperty(ev handler.PropertyEvent) {
	n.mu.Lock()
	observers := append([]handler.PropertyObserver(nil), n.onProp...)
	n.mu.Unlock()
	for _, fn := range observers {
		fn(ev)
	}
}

func (n *stubNode) searchCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.searches
}

var (
	sensorEOJ     = echonet_lite.MakeEOJ(echonet_lite.TemperatureSensor_ClassCode, 1)
	controllerEOJ = echonet_lite.MakeEOJ(echonet_lite.Controller_ClassCode, 1)
)

// startServer はループバックで WebSocket サーバーを起動し、接続先の URL を返す
func startServer(t *testing.T, node *stubNode, shutdown func()) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	transport := server.NewDefaultWebSocketTransport(ctx, "127.0.0.1:0")
	ws := server.NewWebSocketServer(ctx, transport, node, shutdown)

	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- ws.Start(server.StartOptions{Ready: ready}) }()
	select {
	case <-ready:
	case err := <-errCh:
		t.Fatalf("server start: %v", err)
	}
	t.Cleanup(func() { _ = ws.Stop() })
	return "ws://" + transport.Addr() + "/ws"
}

func connect(t *testing.T, url string) *client.WebSocketClient {
	t.Helper()
	c, err := client.NewWebSocketClient(url)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientServer_ListNodes(t *testing.T) {
	node := &stubNode{
		nodes: []handler.NodeSnapshot{
			{
				ID:   "192.0.2.1",
				Self: true,
				Devices: []handler.DeviceSnapshot{
					{
						EOJ:  controllerEOJ,
						Kind: handler.DeviceLocal,
						Properties: echonet_lite.Properties{
							{EPC: echonet_lite.EPCOperationStatus, EDT: []byte{0x30}},
						},
					},
				},
			},
			{
				ID: "192.0.2.2",
				Devices: []handler.DeviceSnapshot{
					{EOJ: sensorEOJ, Kind: handler.DeviceGeneric},
				},
			},
		},
	}
	c := connect(t, startServer(t, node, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	nodes, err := c.ListNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	assert.Equal(t, "192.0.2.1", nodes[0].ID)
	assert.True(t, nodes[0].Self)
	require.Len(t, nodes[0].Devices, 1)
	assert.Equal(t, "05FF01", nodes[0].Devices[0].EOJ)
	assert.Equal(t, "Controller", nodes[0].Devices[0].Class)
	assert.Equal(t, []protocol.PropertyInfo{
		{EPC: 0x80, EDT: protocol.ByteArray{0x30}, Name: "Operation status"},
	}, nodes[0].Devices[0].Properties)

	assert.False(t, nodes[1].Self)
	assert.Equal(t, "001101", nodes[1].Devices[0].EOJ)
	assert.Empty(t, nodes[1].Devices[0].Properties)
}

func TestClientServer_SearchAndErrors(t *testing.T) {
	node := &stubNode{}
	c := connect(t, startServer(t, node, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.Search(ctx))
	assert.Equal(t, 1, node.searchCount())

	node.mu.Lock()
	node.searchErr = errors.New("send failed")
	node.mu.Unlock()
	err := c.Search(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send failed")

	res, err := c.Command(ctx, "no_such_command")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown command")

	// shutdown のコールバックがない場合は失敗を返す
	assert.Error(t, c.Shutdown(ctx))
}

func TestClientServer_Shutdown(t *testing.T) {
	called := make(chan struct{})
	c := connect(t, startServer(t, &stubNode{}, func() { close(called) }))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))

	select {
	case <-called:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown was not called")
	}
}

func TestClientServer_PropertyNotification(t *testing.T) {
	node := &stubNode{}
	c := connect(t, startServer(t, node, nil))

	// 接続が登録されるのを list_nodes の往復で待つ
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.ListNodes(ctx)
	require.NoError(t, err)

	node.emitProperty(handler.PropertyEvent{
		NodeID:   "192.0.2.2",
		EOJ:      sensorEOJ,
		ESV:      echonet_lite.ESVINF,
		Property: echonet_lite.Property{EPC: echonet_lite.EPC_TS_MeasuredTemperature, EDT: []byte{0x00, 0xd7}},
	})

	select {
	case n := <-c.Notifications():
		assert.Equal(t, protocol.EventPropertyChanged, n.Event)
		var data protocol.PropertyNotification
		require.NoError(t, json.Unmarshal(n.Data, &data))
		assert.Equal(t, "192.0.2.2", data.NodeID)
		assert.Equal(t, "001101", data.EOJ)
		assert.Equal(t, protocol.EPCType(0xe0), data.Property.EPC)
		assert.Equal(t, protocol.ByteArray{0x00, 0xd7}, data.Property.EDT)
		assert.Equal(t, "Measured temperature", data.Property.Name)
	case <-time.After(5 * time.Second):
		t.Fatal("notification not received")
	}
}

func TestClient_RunLines(t *testing.T) {
	node := &stubNode{
		nodes: []handler.NodeSnapshot{{ID: "192.0.2.1", Self: true}},
	}
	c := connect(t, startServer(t, node, nil))

	in := strings.NewReader("search\n\nlist_nodes\nbogus\nquit\nsearch\n")
	var out bytes.Buffer
	require.NoError(t, client.RunLines(context.Background(), c, in, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "OK", lines[0])
	assert.JSONEq(t, `[{"id":"192.0.2.1","self":true,"devices":[]}]`, lines[1])
	assert.Equal(t, "OK", lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "ERR unknown command"), lines[3])
	assert.Equal(t, 1, node.searchCount(), "quit 以降は送らない")
}

func TestNewWebSocketClient_InvalidURL(t *testing.T) {
	_, err := client.NewWebSocketClient("http://127.0.0.1:1/ws")
	assert.Error(t, err)
}
