package console

import (
	"bytes"
	"context"
	"echonet-node/echonet_lite"
	"echonet-node/echonet_lite/handler"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeCommander は呼び出しを記録する Commander
type fakeCommander struct {
	mu        sync.Mutex
	searches  int
	shutdowns int
	nodes     []handler.NodeSnapshot
	err       error
}

func (f *fakeCommander) Search(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	return f.err
}

func (f *fakeCommander) ListNodes(ctx context.Context) ([]handler.NodeSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodes, f.err
}

func (f *fakeCommander) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
}

func (f *fakeCommander) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches, f.shutdowns
}

var testNodes = []handler.NodeSnapshot{
	{
		ID:   "192.168.0.10",
		Self: true,
		Devices: []handler.DeviceSnapshot{
			{
				EOJ:        echonet_lite.MakeEOJ(echonet_lite.TemperatureSensor_ClassCode, 1),
				Kind:       handler.DeviceLocal,
				Properties: echonet_lite.Properties{{EPC: 0xe0, EDT: []byte{0x00, 0xe6}}, {EPC: 0xf0, EDT: []byte{0x01}}},
			},
		},
	},
	{ID: "192.168.0.20"},
}

func TestExecute(t *testing.T) {
	tests := []struct {
		name         string
		line         string
		err          error
		want         string
		wantQuit     bool
		wantSearch   int
		wantShutdown int
	}{
		{name: "empty line", line: "   ", want: ""},
		{name: "search", line: "search", want: "OK\n", wantSearch: 1},
		{name: "search with spaces", line: " search \r", want: "OK\n", wantSearch: 1},
		{name: "search fails", line: "search", err: errors.New("loop stopped"), want: "ERR loop stopped\n", wantSearch: 1},
		{
			name: "list_nodes",
			line: "list_nodes",
			want: "192.168.0.10 (self)\n" +
				"  001101 0011[Temperature sensor] [local]\n" +
				"    E0 Measured temperature: 00E6\n" +
				"    F0: 01\n" +
				"192.168.0.20\n" +
				"OK\n",
		},
		{name: "shutdown", line: "shutdown", want: "OK\n", wantShutdown: 1},
		{name: "quit", line: "quit", want: "OK bye\n", wantQuit: true},
		{name: "unknown", line: "reboot", want: "ERR unknown command: reboot\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCommander{nodes: testNodes, err: tt.err}
			var buf bytes.Buffer
			quit := Execute(context.Background(), c, tt.line, &buf)

			assert.Equal(t, tt.wantQuit, quit)
			assert.Equal(t, tt.want, buf.String())
			searches, shutdowns := c.counts()
			assert.Equal(t, tt.wantSearch, searches)
			assert.Equal(t, tt.wantShutdown, shutdowns)
		})
	}
}

func TestExecute_Help(t *testing.T) {
	var buf bytes.Buffer
	Execute(context.Background(), &fakeCommander{}, "help", &buf)
	out := buf.String()
	for _, name := range []string{"search", "list_nodes", "shutdown", "quit", "help"} {
		assert.Contains(t, out, name)
	}
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("OK\n")))
}

func TestIsStatusLine(t *testing.T) {
	tests := map[string]bool{
		"OK":                       true,
		"OK bye":                   true,
		"ERR unknown command: x":   true,
		"OKAY":                     false,
		"ERROR":                    false,
		"  001101 0011[x] [local]": false,
		"192.168.0.20":             false,
	}
	for line, want := range tests {
		assert.Equal(t, want, IsStatusLine(line), line)
	}
}
