package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	stdhttp "net/http"
	"strings"
	"testing"
	"time"

	"meridian-hq/janus/pkg/config"
)

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

// startOrigin runs a single-response HTTP origin.
func startOrigin(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				reader := bufio.NewReader(conn)
				for {
					if _, err := stdhttp.ReadRequest(reader); err != nil {
						return
					}
					io.WriteString(conn, "HTTP/1.1 200 OK\r\ncontent-length: 2\r\n\r\nok")
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func testConfig(originAddr string) *config.Config {
	cfg := &config.Config{
		Listeners: []config.ListenerConfig{{
			Address:          "127.0.0.1:0",
			UseRemoteAddress: true,
			Routes:           []config.RouteConfig{{Prefix: "/", Cluster: "backend"}},
		}},
		Clusters: []config.ClusterConfig{{
			Name:  "backend",
			Hosts: []string{originAddr},
		}},
		Admin: config.AdminConfig{Address: "127.0.0.1:0"},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func startServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("server did not shut down")
		}
	})
	return srv
}

func TestServerProxiesEndToEnd(t *testing.T) {
	origin := startOrigin(t)
	srv := startServer(t, testConfig(origin))

	conn, err := net.DialTimeout("tcp", srv.ListenerAddresses()[0], 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	fmt.Fprint(conn, "GET /any HTTP/1.1\r\nhost: h\r\n\r\n")
	response, err := stdhttp.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	body, _ := io.ReadAll(response.Body)
	if response.StatusCode != 200 || string(body) != "ok" {
		t.Fatalf("status %d body %q", response.StatusCode, body)
	}
}

func TestServerAdminEndpoints(t *testing.T) {
	origin := startOrigin(t)
	srv := startServer(t, testConfig(origin))

	base := "http://" + srv.AdminAddress()

	response, err := stdhttp.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != 200 {
		t.Fatalf("healthz status = %d", response.StatusCode)
	}

	response, err = stdhttp.Get(base + "/clusters")
	if err != nil {
		t.Fatalf("clusters: %v", err)
	}
	body, _ := io.ReadAll(response.Body)
	response.Body.Close()
	if !strings.Contains(string(body), "backend: 1/1 healthy") {
		t.Fatalf("clusters output = %q", body)
	}

	response, err = stdhttp.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != 200 {
		t.Fatalf("metrics status = %d", response.StatusCode)
	}
}
