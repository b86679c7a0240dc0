package proxy

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"meridian-hq/janus/pkg/accesslog"
	"meridian-hq/janus/pkg/buffer"
	"meridian-hq/janus/pkg/event"
	"meridian-hq/janus/pkg/http"
	"meridian-hq/janus/pkg/http/http1"
	"meridian-hq/janus/pkg/network"
	"meridian-hq/janus/pkg/runtime"
	"meridian-hq/janus/pkg/stats"
	"meridian-hq/janus/pkg/upstream"
)

// Route maps a path prefix onto a cluster.
type Route struct {
	Prefix  string
	Cluster string
}

// ClusterHandle is what the router needs from one upstream cluster: its
// membership view and the load balancer drawing from it.
type ClusterHandle struct {
	Name         string
	HostSet      *upstream.HostSet
	Stats        *upstream.ClusterStats
	LoadBalancer upstream.LoadBalancer
}

// Config is the per-listener connection manager configuration.
type Config struct {
	// Mutation drives request/response header normalization.
	Mutation http.MutationConfig

	// Routes are matched longest-prefix against :path.
	Routes []Route

	// ServerName is emitted as the server response header when set.
	ServerName string
}

// Factory creates a connection manager for every accepted connection. It
// implements network.ListenerCallbacks.
type Factory struct {
	Config     *Config
	Clusters   map[string]*ClusterHandle
	Dispatcher *event.Dispatcher
	Random     runtime.RandomGenerator
	AccessLog  accesslog.Log
	Logger     *slog.Logger

	// FailedRequestID counts request-id generation failures.
	FailedRequestID *stats.Counter
}

// NewFactory wires a factory, issuing its stats from store.
func NewFactory(cfg *Config, clusters map[string]*ClusterHandle, dispatcher *event.Dispatcher, random runtime.RandomGenerator, log accesslog.Log, store *stats.Store, logger *slog.Logger) *Factory {
	return &Factory{
		Config:          cfg,
		Clusters:        clusters,
		Dispatcher:      dispatcher,
		Random:          random,
		AccessLog:       log,
		Logger:          logger,
		FailedRequestID: store.Counter("http.failed_generate_uuid"),
	}
}

// OnNewConnection implements network.ListenerCallbacks.
func (f *Factory) OnNewConnection(conn *network.Connection) {
	cm := &ConnectionManager{factory: f}
	conn.AddReadFilter(cm)
	conn.AddConnectionCallbacks(cm)
}

// ConnectionManager owns the HTTP side of one downstream connection.
type ConnectionManager struct {
	factory *Factory

	callbacks network.ReadFilterCallbacks
	codec     *http1.ServerConnection

	// pendingData aliases the connection's read buffer so buffered
	// pipelined requests can be re-dispatched after the response.
	pendingData     *buffer.Buffer
	redispatchTimer *event.Timer

	stream *activeStream
}

// network.ReadFilter

func (cm *ConnectionManager) InitializeReadFilterCallbacks(callbacks network.ReadFilterCallbacks) {
	cm.callbacks = callbacks
	cm.redispatchTimer = cm.factory.Dispatcher.CreateTimer(cm.redispatch)
}

func (cm *ConnectionManager) OnNewConnection() network.FilterStatus {
	cm.codec = http1.NewServerConnection(cm.callbacks.Connection(), cm)
	return network.Continue
}

func (cm *ConnectionManager) OnData(data *buffer.Buffer) network.FilterStatus {
	cm.pendingData = data
	cm.dispatch(data)
	return network.StopIteration
}

func (cm *ConnectionManager) dispatch(data *buffer.Buffer) {
	if err := cm.codec.Dispatch(data); err != nil {
		conn := cm.callbacks.Connection()
		conn.Logger().Debug("codec error", "err", err)
		if cm.stream != nil {
			cm.stream.failureReason = "DPE"
			cm.finishStream(cm.stream)
		}
		// The 400 (if any) is already buffered; flush it out and close.
		conn.Close(network.FlushWrite)
	}
}

// redispatch resumes a paused codec after the previous response completed.
func (cm *ConnectionManager) redispatch() {
	conn := cm.callbacks.Connection()
	if conn.State() != network.Open || cm.pendingData == nil || cm.pendingData.Length() == 0 {
		return
	}
	cm.dispatch(cm.pendingData)
}

// network.ConnectionCallbacks: downstream lifecycle.

func (cm *ConnectionManager) OnEvent(ev network.ConnectionEvent) {
	if ev != network.RemoteClose && ev != network.LocalClose {
		return
	}
	cm.redispatchTimer.DisableTimer()
	if cm.stream != nil {
		stream := cm.stream
		if stream.failureReason == "" {
			stream.failureReason = "DC"
		}
		cm.finishStream(stream)
	}
}

// http1.ServerCallbacks

func (cm *ConnectionManager) NewStream(responseEncoder http1.StreamEncoder) http1.StreamDecoder {
	stream := &activeStream{
		cm:              cm,
		responseEncoder: responseEncoder,
		startTime:       time.Now(),
	}
	cm.stream = stream
	return stream
}

// routeFor returns the handle for the longest route prefix matching path,
// or nil.
func (cm *ConnectionManager) routeFor(path string) *ClusterHandle {
	bestLen := -1
	var best *ClusterHandle
	for _, route := range cm.factory.Config.Routes {
		if len(route.Prefix) > bestLen && strings.HasPrefix(path, route.Prefix) {
			if handle, ok := cm.factory.Clusters[route.Cluster]; ok {
				bestLen = len(route.Prefix)
				best = handle
			}
		}
	}
	return best
}

// finishStream emits the access log entry and releases per-stream
// resources. Safe to call more than once per stream.
func (cm *ConnectionManager) finishStream(stream *activeStream) {
	if stream.finished {
		return
	}
	stream.finished = true

	if stream.host != nil {
		stream.host.Stats().RqActive.Add(-1)
	}
	if stream.upstreamConn != nil && stream.upstreamConn.State() != network.Closed {
		stream.upstreamConn.Close(network.NoFlush)
	}

	conn := cm.callbacks.Connection()
	entry := &accesslog.Entry{
		Timestamp:     stream.startTime,
		RequestID:     stream.requestID,
		Method:        stream.method,
		Path:          stream.path,
		Protocol:      stream.protocol,
		ResponseCode:  stream.responseCode,
		BytesReceived: stream.bytesReceived,
		BytesSent:     stream.bytesSent,
		Duration:      time.Since(stream.startTime),
		RemoteAddress: conn.RemoteAddress(),
		UpstreamHost:  stream.upstreamAddress,
		FailureReason: stream.failureReason,
	}
	if cm.factory.AccessLog != nil {
		cm.factory.AccessLog.Log(entry)
	}

	if cm.stream == stream {
		cm.stream = nil
	}

	// A reply sent before the request completed leaves the connection in
	// an unusable framing state.
	if !stream.requestComplete && conn.State() == network.Open {
		conn.Close(network.FlushWrite)
		return
	}

	// Pick up any pipelined request that is already buffered.
	if conn.State() == network.Open && cm.pendingData != nil && cm.pendingData.Length() > 0 {
		cm.redispatchTimer.EnableTimer(0)
	}
}

// statusBody returns the canned local-reply body for a status code.
func statusBody(code int) string {
	return strconv.Itoa(code) + " " + http.StatusText(code) + "\n"
}
