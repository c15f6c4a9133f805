package server_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rems-acc/rems/internal/server"
)

func TestServe_AnswersAndShutsDown(t *testing.T) {
	ln, err := server.Listen("127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, ln, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "pong")
		}), server.Options{ShutdownTimeout: time.Second})
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	_, err = net.DialTimeout("tcp", ln.Addr().String(), 200*time.Millisecond)
	assert.Error(t, err, "listener must be closed after shutdown")
}

func TestListen_AddressInUse(t *testing.T) {
	ln, err := server.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = server.Listen(ln.Addr().String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server: listen")
}

func TestServe_ReturnsErrorWhenListenerFails(t *testing.T) {
	ln, err := server.Listen("127.0.0.1:0")
	require.NoError(t, err)
	ln.Close()

	err = server.Serve(context.Background(), ln, http.NotFoundHandler(), server.Options{})
	assert.Error(t, err)
}
