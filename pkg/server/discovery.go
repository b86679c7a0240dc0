package server

import (
	"context"
	"io"
	stdhttp "net/http"
	"time"

	"meridian-hq/janus/pkg/event"
	"meridian-hq/janus/pkg/upstream"
)

// discoveryClient implements upstream.AsyncClient over net/http. Fetches
// run on their own goroutine; results are posted back to the dispatcher so
// cluster callbacks stay single-threaded.
type discoveryClient struct {
	dispatcher *event.Dispatcher
	baseURL    string
	client     *stdhttp.Client
}

func newDiscoveryClient(dispatcher *event.Dispatcher, address string) *discoveryClient {
	return &discoveryClient{
		dispatcher: dispatcher,
		baseURL:    "http://" + address,
		client:     &stdhttp.Client{},
	}
}

type discoveryRequest struct {
	cancel context.CancelFunc
}

func (r *discoveryRequest) Cancel() { r.cancel() }

// Send implements upstream.AsyncClient.
func (c *discoveryClient) Send(path string, timeout time.Duration, cb func(status int, body []byte, err error)) upstream.ActiveRequest {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	go func() {
		defer cancel()
		status, body, err := c.fetch(ctx, path)
		// Deliver on the loop; a cancelled request reports its context
		// error and the cluster absorbs it as an update failure.
		c.dispatcher.Post(func() { cb(status, body, err) })
	}()
	return &discoveryRequest{cancel: cancel}
}

func (c *discoveryClient) fetch(ctx context.Context, path string) (int, []byte, error) {
	request, err := stdhttp.NewRequestWithContext(ctx, stdhttp.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, err
	}
	response, err := c.client.Do(request)
	if err != nil {
		return 0, nil, err
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return 0, nil, err
	}
	return response.StatusCode, body, nil
}
