package server

import (
	"context"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestHTTPServer_StopsCleanlyOnContextCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := NewHTTPServer(gin.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx, "127.0.0.1:0")
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down after cancel")
	}
}

func TestHTTPServer_BadListenAddrFails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := NewHTTPServer(gin.New())

	err := srv.Run(context.Background(), "256.256.256.256:0")
	require.Error(t, err)
}
