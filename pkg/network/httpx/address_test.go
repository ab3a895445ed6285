package httpx

import (
	"net"
	"testing"
)

type testListener struct {
	addr net.TCPAddr
}

func (tl testListener) Accept() (net.Conn, error) { return nil, nil }
func (tl testListener) Close() error              { return nil }
func (tl testListener) Addr() net.Addr            { return &tl.addr }

func NewTCP(port int) Listener {
	return Listener{testListener{addr: net.TCPAddr{Port: port}}}
}

func TestMergeAddresses(t *testing.T) {
	tests := []struct {
		addr string
		ls   Listener
		rez  string
	}{
		{addr: "", rez: "localhost"},
		{addr: ":", ls: NewTCP(0), rez: "localhost"},
		{addr: "", ls: NewTCP(393), rez: "localhost:393"},
		{addr: ":3000", ls: NewTCP(3000), rez: "localhost:3000"},
		{addr: ":3000", ls: NewTCP(3001), rez: "localhost:3001"},
		{addr: "host:3000", ls: NewTCP(3000), rez: "host:3000"},
		{addr: "host:3000", ls: NewTCP(3001), rez: "host:3001"},
		{addr: ":80", ls: NewTCP(80), rez: "localhost"},
		{addr: ":", ls: NewTCP(344), rez: "localhost:344"},
		{addr: "https://garbage.com:99a9a", rez: "https://garbage.com:99a9a"},
		{addr: "[::]", rez: "[::]"},
	}

	for _, test := range tests {
		address := mergeAddresses(test.addr, test.ls)
		if address != test.rez {
			t.Errorf("expected %v, got %v", test.rez, address)
		}
	}
}

func TestSplitHostPort(t *testing.T) {
	tests := []struct {
		addr Address
		host string
		port int
	}{
		{addr: "localhost:3000", host: "localhost", port: 3000},
		{addr: ":3000", host: "", port: 3000},
		{addr: "localhost", host: "localhost", port: 0},
	}
	for _, test := range tests {
		host, port := test.addr.SplitHostPort()
		if host != test.host || port != test.port {
			t.Errorf("expected %v %v, got %v %v", test.host, test.port, host, port)
		}
	}
}
