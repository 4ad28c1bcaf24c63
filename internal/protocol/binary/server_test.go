package binary

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonlabs/carbon/internal/dataplane"
	"github.com/carbonlabs/carbon/internal/domain"
	"github.com/carbonlabs/carbon/internal/eventbus"
	"github.com/carbonlabs/carbon/internal/registry"
	"github.com/carbonlabs/carbon/internal/store"
)

// startTestServer boots a Server on a random port over an in-memory
// registry holding one cache named "c1", and returns a connected client.
func startTestServer(t *testing.T) net.Conn {
	t.Helper()

	reg := registry.New(nil)
	cfg := domain.CacheConfig{
		Name:     "c1",
		Backend:  domain.BackendSizeBounded,
		Policy:   domain.PolicyLru,
		MemBytes: 1 << 20,
		Shards:   4,
	}
	s, err := store.New(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	_, err = reg.Create(cfg, s)
	require.NoError(t, err)

	dp := dataplane.New(reg, eventbus.New(nil, 16))
	srv := NewServer("127.0.0.1:0", dp, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		if err := srv.ListenAndServe(ctx); err != nil {
			t.Errorf("server: %v", err)
		}
	}()

	// Wait for the listener to bind.
	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server never bound its listener")
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, req Request) (RespCode, []byte, string) {
	t.Helper()
	require.NoError(t, WriteFrame(conn, EncodeRequest(req)))
	payload, err := ReadFrame(conn)
	require.NoError(t, err)
	code, value, msg, err := DecodeResponse(payload)
	require.NoError(t, err)
	return code, value, msg
}

func TestPingPong(t *testing.T) {
	conn := startTestServer(t)
	code, _, _ := roundTrip(t, conn, Request{Op: OpPing})
	assert.Equal(t, RespPong, code)
}

func TestPutGetDeleteOverWire(t *testing.T) {
	conn := startTestServer(t)

	code, _, _ := roundTrip(t, conn, Request{Op: OpPut, Cache: "c1", Key: []byte("k"), Value: []byte("v")})
	assert.Equal(t, RespOK, code)

	code, value, _ := roundTrip(t, conn, Request{Op: OpGet, Cache: "c1", Key: []byte("k")})
	assert.Equal(t, RespValue, code)
	assert.Equal(t, []byte("v"), value)

	code, _, _ = roundTrip(t, conn, Request{Op: OpDel, Cache: "c1", Key: []byte("k")})
	assert.Equal(t, RespOK, code)

	code, _, _ = roundTrip(t, conn, Request{Op: OpGet, Cache: "c1", Key: []byte("k")})
	assert.Equal(t, RespNotFound, code)

	// DEL of an absent key is still OK on the wire; NOT_FOUND is reserved
	// for GET misses.
	code, _, _ = roundTrip(t, conn, Request{Op: OpDel, Cache: "c1", Key: []byte("k")})
	assert.Equal(t, RespOK, code)
}

func TestUnknownCacheYieldsError(t *testing.T) {
	conn := startTestServer(t)
	code, _, msg := roundTrip(t, conn, Request{Op: OpPut, Cache: "nope", Key: []byte("k"), Value: []byte("v")})
	assert.Equal(t, RespError, code)
	assert.Contains(t, msg, "cache not found")
}

func TestMalformedFrameKeepsConnectionOpen(t *testing.T) {
	conn := startTestServer(t)

	// Unknown opcode: ERROR, same connection.
	require.NoError(t, WriteFrame(conn, []byte{0x7f}))
	payload, err := ReadFrame(conn)
	require.NoError(t, err)
	code, _, _, err := DecodeResponse(payload)
	require.NoError(t, err)
	assert.Equal(t, RespError, code)

	// Truncated PUT payload: ERROR, same connection.
	full := EncodeRequest(Request{Op: OpPut, Cache: "c1", Key: []byte("k"), Value: []byte("vvvv")})
	require.NoError(t, WriteFrame(conn, full[:len(full)-2]))
	payload, err = ReadFrame(conn)
	require.NoError(t, err)
	code, _, _, err = DecodeResponse(payload)
	require.NoError(t, err)
	assert.Equal(t, RespError, code)

	// The connection survived both: a PING still answers.
	respCode, _, _ := roundTrip(t, conn, Request{Op: OpPing})
	assert.Equal(t, RespPong, respCode)
}

func TestOversizeFrameKeepsConnectionOpen(t *testing.T) {
	conn := startTestServer(t)

	require.NoError(t, WriteFrame(conn, make([]byte, MaxFrameSize+1)))
	payload, err := ReadFrame(conn)
	require.NoError(t, err)
	code, _, msg, err := DecodeResponse(payload)
	require.NoError(t, err)
	assert.Equal(t, RespError, code)
	assert.Contains(t, msg, "max size")

	respCode, _, _ := roundTrip(t, conn, Request{Op: OpPing})
	assert.Equal(t, RespPong, respCode)
}

func TestWireLayoutMatchesByteForByte(t *testing.T) {
	conn := startTestServer(t)

	// PUT c1 k=v, spelled out rather than via EncodeRequest: opcode, u32
	// cname length, cname, u32 key length, u32 value length, key, value.
	putPayload := []byte{
		0x01,
		0x00, 0x00, 0x00, 0x02, 'c', '1',
		0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x01,
		'k',
		'v',
	}
	require.NoError(t, WriteFrame(conn, putPayload))
	resp, err := ReadFrame(conn)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, resp, "OK is the bare 0x01 tag")

	getPayload := []byte{
		0x02,
		0x00, 0x00, 0x00, 0x02, 'c', '1',
		0x00, 0x00, 0x00, 0x01,
		'k',
	}
	require.NoError(t, WriteFrame(conn, getPayload))
	resp, err = ReadFrame(conn)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x00, 0x00, 0x00, 0x01, 'v'}, resp, "VALUE carries a u32 length then the bytes")
}
