package http1

import (
	"errors"
	"testing"

	"meridian-hq/janus/pkg/buffer"
	"meridian-hq/janus/pkg/http"
)

func newClientHarness() (*ClientConnection, *fakeConn) {
	conn := newFakeConn()
	return NewClientConnection(conn), conn
}

func startRequest(t *testing.T, client *ClientConnection, method, path string) (*recordingDecoder, StreamEncoder) {
	t.Helper()
	decoder := &recordingDecoder{}
	encoder, err := client.NewStream(decoder)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	headers := http.NewHeaderMapFromPairs(http.HeaderMethod, method, http.HeaderPath, path)
	if err := encoder.EncodeHeaders(headers, true); err != nil {
		t.Fatalf("EncodeHeaders: %v", err)
	}
	return decoder, encoder
}

func TestEncodeRequestRequiresMethodAndPath(t *testing.T) {
	client, _ := newClientHarness()

	decoder := &recordingDecoder{}
	encoder, err := client.NewStream(decoder)
	if err != nil {
		t.Fatal(err)
	}

	err = encoder.EncodeHeaders(http.NewHeaderMapFromPairs(http.HeaderMethod, "GET"), true)
	if !errors.Is(err, ErrCodecClient) {
		t.Fatalf("EncodeHeaders without :path = %v, want ErrCodecClient", err)
	}
}

func TestEncodeRequestWire(t *testing.T) {
	client, conn := newClientHarness()
	startRequest(t, client, "GET", "/v1/registration/backend")

	want := "GET /v1/registration/backend HTTP/1.1\r\ncontent-length: 0\r\n\r\n"
	if got := conn.take(); got != want {
		t.Fatalf("wire = %q, want %q", got, want)
	}
}

func TestDecodeResponseWithBody(t *testing.T) {
	client, _ := newClientHarness()
	decoder, _ := startRequest(t, client, "GET", "/")

	input := buffer.NewString("HTTP/1.1 200 OK\r\ncontent-length: 4\r\n\r\nokay")
	if err := client.Dispatch(input); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if got := decoder.headers.Get(http.HeaderStatus); got != "200" {
		t.Fatalf(":status = %q", got)
	}
	if decoder.headersEnd {
		t.Fatal("headers delivered with endStream despite pending body")
	}
	if string(decoder.body) != "okay" || !decoder.sawEndStream {
		t.Fatalf("body = %q endStream = %v", decoder.body, decoder.sawEndStream)
	}
}

func TestResponsesMatchRequestsInOrder(t *testing.T) {
	client, _ := newClientHarness()
	first, _ := startRequest(t, client, "GET", "/a")
	second, _ := startRequest(t, client, "GET", "/b")

	input := buffer.NewString(
		"HTTP/1.1 200 OK\r\ncontent-length: 1\r\n\r\na" +
			"HTTP/1.1 404 Not Found\r\ncontent-length: 1\r\n\r\nb")
	if err := client.Dispatch(input); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if got := first.headers.Get(http.HeaderStatus); got != "200" {
		t.Fatalf("first :status = %q", got)
	}
	if got := second.headers.Get(http.HeaderStatus); got != "404" {
		t.Fatalf("second :status = %q", got)
	}
	if string(first.body) != "a" || string(second.body) != "b" {
		t.Fatalf("bodies = %q, %q", first.body, second.body)
	}
}

func TestHeadResponseDefersHeadersAndIgnoresBody(t *testing.T) {
	client, _ := newClientHarness()
	decoder, _ := startRequest(t, client, "HEAD", "/big")

	// The upstream frames a body; it must be discarded, with headers
	// delivered at end-of-stream.
	input := buffer.NewString("HTTP/1.1 200 OK\r\ncontent-length: 5\r\n\r\nhello")
	if err := client.Dispatch(input); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if decoder.headersCalls != 1 || !decoder.headersEnd {
		t.Fatalf("headers calls = %d end = %v, want 1/true", decoder.headersCalls, decoder.headersEnd)
	}
	if len(decoder.body) != 0 {
		t.Fatalf("HEAD response body delivered: %q", decoder.body)
	}
	if input.Length() != 0 {
		t.Fatalf("body bytes not consumed, %d left", input.Length())
	}
}

func TestNoContentResponseDefersHeaders(t *testing.T) {
	for _, status := range []string{"204 No Content", "304 Not Modified"} {
		client, _ := newClientHarness()
		decoder, _ := startRequest(t, client, "GET", "/")

		if err := client.Dispatch(buffer.NewString("HTTP/1.1 " + status + "\r\n\r\n")); err != nil {
			t.Fatalf("Dispatch(%s): %v", status, err)
		}
		if !decoder.headersEnd {
			t.Fatalf("%s: headers not deferred to end-of-stream", status)
		}
	}
}

func TestPrematureResponse(t *testing.T) {
	client, _ := newClientHarness()

	err := client.Dispatch(buffer.NewString("HTTP/1.1 200 OK\r\ncontent-length: 0\r\n\r\n"))
	var premature *PrematureResponseError
	if !errors.As(err, &premature) {
		t.Fatalf("Dispatch = %v, want PrematureResponseError", err)
	}
	if got := premature.Headers.Get(http.HeaderStatus); got != "200" {
		t.Fatalf("premature headers :status = %q", got)
	}
}

func TestResponseAfterResetIsDrained(t *testing.T) {
	client, _ := newClientHarness()
	resetSeen := false
	decoder := &recordingDecoder{}
	encoder, err := client.NewStream(decoder)
	if err != nil {
		t.Fatal(err)
	}
	encoder.SetResetCallback(func(StreamResetReason) { resetSeen = true })
	headers := http.NewHeaderMapFromPairs(http.HeaderMethod, "GET", http.HeaderPath, "/")
	if err := encoder.EncodeHeaders(headers, true); err != nil {
		t.Fatal(err)
	}

	encoder.ResetStream(LocalReset)
	if !resetSeen {
		t.Fatal("reset callback not invoked")
	}

	// A late response after the reset is drained without error.
	input := buffer.NewString("HTTP/1.1 200 OK\r\ncontent-length: 2\r\n\r\nhi")
	if err := client.Dispatch(input); err != nil {
		t.Fatalf("Dispatch after reset: %v", err)
	}
	if decoder.headersCalls != 0 {
		t.Fatal("decoder invoked after reset")
	}
	if input.Length() != 0 {
		t.Fatalf("late response not drained, %d bytes left", input.Length())
	}
}

func TestNewStreamAfterResetFails(t *testing.T) {
	client, _ := newClientHarness()
	_, encoder := startRequest(t, client, "GET", "/")
	encoder.ResetStream(LocalReset)

	if _, err := client.NewStream(&recordingDecoder{}); !errors.Is(err, ErrCodecClient) {
		t.Fatalf("NewStream after reset = %v, want ErrCodecClient", err)
	}
}

func TestMessageCountInvariant(t *testing.T) {
	// Total end-of-stream deliveries equals the number of messages parsed.
	client, _ := newClientHarness()
	decoders := make([]*recordingDecoder, 3)
	for i := range decoders {
		decoders[i], _ = startRequest(t, client, "GET", "/")
	}

	input := buffer.NewString(
		"HTTP/1.1 200 OK\r\ncontent-length: 0\r\n\r\n" +
			"HTTP/1.1 200 OK\r\ncontent-length: 2\r\n\r\nok" +
			"HTTP/1.1 204 No Content\r\n\r\n")
	if err := client.Dispatch(input); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	ends := 0
	for _, d := range decoders {
		if d.sawEndStream {
			ends++
		}
	}
	if ends != 3 {
		t.Fatalf("end-of-stream count = %d, want 3", ends)
	}
}

func TestResponseAfterCompleteCannotReset(t *testing.T) {
	client, _ := newClientHarness()
	decoder, encoder := startRequest(t, client, "GET", "/")

	if err := client.Dispatch(buffer.NewString("HTTP/1.1 200 OK\r\ncontent-length: 0\r\n\r\n")); err != nil {
		t.Fatal(err)
	}
	if !decoder.sawEndStream {
		t.Fatal("response not delivered")
	}

	// Resetting after a complete response must not reach the callback.
	resetSeen := false
	encoder.SetResetCallback(func(StreamResetReason) { resetSeen = true })
	encoder.ResetStream(RemoteReset)
	if resetSeen {
		t.Fatal("reset raised after complete response")
	}
}
