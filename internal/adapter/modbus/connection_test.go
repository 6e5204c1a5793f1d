package modbus

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/utilitysc/vsd-monitor/internal/domain"
)

// startListener accepts TCP sessions and hands them to the test.
func startListener(t *testing.T) (net.Listener, chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	conns := make(chan net.Conn, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns <- conn
		}
	}()
	return ln, conns
}

func TestUnpackRegisters(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want []uint16
	}{
		{
			name: "big endian words",
			data: []byte{0x01, 0xC9, 0x00, 0x7B},
			want: []uint16{457, 123},
		},
		{
			name: "empty payload",
			data: nil,
			want: []uint16{},
		},
		{
			name: "max value",
			data: []byte{0xFF, 0xFF},
			want: []uint16{65535},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := unpackRegisters(tt.data)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d words, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("word %d: got %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestUnpackBits(t *testing.T) {
	// 0b10000100: bits 2 and 7 set.
	got := unpackBits([]byte{0x84}, 8)
	want := []bool{false, false, true, false, false, false, false, true}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bit %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestUnpackBits_MultiByte(t *testing.T) {
	got := unpackBits([]byte{0x01, 0x80}, 16)
	if !got[0] {
		t.Error("bit 0 should be set")
	}
	if !got[15] {
		t.Error("bit 15 should be set")
	}
	for i := 1; i < 15; i++ {
		if got[i] {
			t.Errorf("bit %d should be clear", i)
		}
	}
}

func TestUnpackBits_ShortPayload(t *testing.T) {
	got := unpackBits([]byte{0xFF}, 16)
	for i := 8; i < 16; i++ {
		if got[i] {
			t.Errorf("bit %d beyond payload should be clear", i)
		}
	}
}

func TestNewConnection_Validation(t *testing.T) {
	if _, err := NewConnection(Config{}, zerolog.Nop()); err == nil {
		t.Error("empty address should fail")
	}

	c, err := NewConnection(Config{Address: "127.0.0.1:502"}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if c.State() != StateDisconnected {
		t.Errorf("initial state: got %s", c.State())
	}
	if c.config.Timeout <= 0 {
		t.Error("timeout default not applied")
	}
}

func TestConnection_ReadWhileDisconnected(t *testing.T) {
	c, err := NewConnection(Config{Address: "127.0.0.1:502"}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.ReadHoldingRegisters(context.Background(), 1, 102, 8)
	if !errors.Is(err, domain.ErrConnectionClosed) {
		t.Errorf("got %v, want ErrConnectionClosed", err)
	}
}

func TestConnection_EnsureConnectedHonorsContext(t *testing.T) {
	// A blackhole address: dialing will hang until the context expires.
	c, err := NewConnection(Config{
		Address: "10.255.255.1:502",
		Timeout: 10 * time.Second,
	}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = c.EnsureConnected(ctx)
	if err == nil {
		t.Fatal("expected error")
	}
	if c.State() != StateDisconnected {
		t.Errorf("state after failed dial: got %s", c.State())
	}
}

func TestNewConnection_BreakerDefaults(t *testing.T) {
	c, err := NewConnection(Config{Address: "127.0.0.1:502"}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if c.config.CBInterval != 30*time.Second {
		t.Errorf("CBInterval default: got %v", c.config.CBInterval)
	}
	if c.config.CBTimeout != 30*time.Second {
		t.Errorf("CBTimeout default: got %v", c.config.CBTimeout)
	}
	if c.config.CBFailureThreshold != 3 {
		t.Errorf("CBFailureThreshold default: got %d", c.config.CBFailureThreshold)
	}
}

func TestConnection_BreakerThresholdConfigurable(t *testing.T) {
	// Threshold 1: a single failed dial must open the breaker, so the
	// next attempt is suppressed instead of dialed.
	c, err := NewConnection(Config{
		Address:            "10.255.255.1:502",
		CBFailureThreshold: 1,
		CBTimeout:          time.Minute,
	}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.EnsureConnected(ctx); err == nil {
		t.Fatal("expected dial failure")
	}

	err = c.EnsureConnected(context.Background())
	if !errors.Is(err, domain.ErrReconnectPending) {
		t.Errorf("got %v, want ErrReconnectPending", err)
	}
}

func TestConnection_RedialClosesPreviousSession(t *testing.T) {
	ln, conns := startListener(t)

	c, err := NewConnection(Config{Address: ln.Addr().String()}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.EnsureConnected(ctx); err != nil {
		t.Fatal(err)
	}
	first := <-conns

	// Simulate a transport error that dropped the session state but
	// left the socket open.
	c.setState(StateDisconnected)
	if err := c.EnsureConnected(ctx); err != nil {
		t.Fatal(err)
	}
	<-conns

	// The first session must be closed by the redial, not leaked.
	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := first.Read(buf); err != io.EOF {
		t.Errorf("previous session still open after redial: %v", err)
	}
}

func TestConnection_FirstConnectIsNotAReconnect(t *testing.T) {
	ln, conns := startListener(t)

	c, err := NewConnection(Config{Address: ln.Addr().String()}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.EnsureConnected(ctx); err != nil {
		t.Fatal(err)
	}
	<-conns
	if got := c.Stats().Reconnects.Load(); got != 0 {
		t.Errorf("reconnects after first connect: got %d, want 0", got)
	}

	c.setState(StateDisconnected)
	if err := c.EnsureConnected(ctx); err != nil {
		t.Fatal(err)
	}
	<-conns
	if got := c.Stats().Reconnects.Load(); got != 1 {
		t.Errorf("reconnects after redial: got %d, want 1", got)
	}
}

func TestConnection_HealthCheck(t *testing.T) {
	c, err := NewConnection(Config{Address: "127.0.0.1:502"}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, domain.ErrConnectionClosed) {
		t.Errorf("got %v, want ErrConnectionClosed", err)
	}
}
