package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	stdhttp "net/http"
	"os"
	"time"

	"meridian-hq/janus/pkg/accesslog"
	"meridian-hq/janus/pkg/config"
	"meridian-hq/janus/pkg/event"
	"meridian-hq/janus/pkg/http"
	"meridian-hq/janus/pkg/network"
	"meridian-hq/janus/pkg/proxy"
	"meridian-hq/janus/pkg/runtime"
	"meridian-hq/janus/pkg/stats"
	"meridian-hq/janus/pkg/upstream"
)

// Server is a fully assembled proxy instance.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	dispatcher *event.Dispatcher
	store      *stats.Store
	loader     runtime.Loader
	random     runtime.RandomGenerator

	clusters    map[string]*proxy.ClusterHandle
	sdsClusters []*upstream.SdsCluster
	listeners   []*network.Listener

	accessLog     accesslog.Log
	sqliteLog     *accesslog.SQLiteLog
	retention     *accesslog.RetentionScheduler
	diskLoader    *runtime.DiskLoader
	adminServer   *stdhttp.Server
	adminListener net.Listener
}

// New assembles a server from cfg. Nothing is serving until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	dispatcher, err := event.NewDispatcher()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		dispatcher: dispatcher,
		store:      stats.NewStore(cfg.Telemetry.Metrics.Namespace, nil),
		random:     runtime.NewRandomGenerator(),
		clusters:   make(map[string]*proxy.ClusterHandle),
	}

	if err := s.setupRuntime(); err != nil {
		return nil, err
	}
	if err := s.setupAccessLog(); err != nil {
		return nil, err
	}
	if err := s.setupClusters(); err != nil {
		return nil, err
	}
	if err := s.setupListeners(); err != nil {
		return nil, err
	}
	if err := s.setupAdmin(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) setupRuntime() error {
	if s.cfg.Runtime.Root == "" {
		s.loader = runtime.NewNullLoader(s.random)
		return nil
	}
	loader, err := runtime.NewDiskLoader(s.cfg.Runtime.Root, s.random, s.logger)
	if err != nil {
		return err
	}
	s.diskLoader = loader
	s.loader = loader
	return nil
}

func (s *Server) setupAccessLog() error {
	var sinks accesslog.MultiLog

	switch s.cfg.AccessLog.Path {
	case "":
	case "stdout":
		sinks = append(sinks, accesslog.NewWriterLog(os.Stdout, s.logger))
	default:
		file, err := os.OpenFile(s.cfg.AccessLog.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("server: open access log: %w", err)
		}
		sinks = append(sinks, accesslog.NewWriterLog(file, s.logger))
	}

	if path := s.cfg.AccessLog.SQLitePath; path != "" {
		store, err := accesslog.NewSQLiteLog(path, s.logger)
		if err != nil {
			return err
		}
		s.sqliteLog = store
		sinks = append(sinks, store)
		s.retention = accesslog.NewRetentionScheduler(store, accesslog.RetentionConfig{
			Schedule: s.cfg.AccessLog.RetentionSchedule,
			MaxAge:   s.cfg.AccessLog.RetentionMaxAge,
		}, s.logger)
	}

	if len(sinks) > 0 {
		s.accessLog = sinks
	}
	return nil
}

func (s *Server) setupClusters() error {
	for _, clusterCfg := range s.cfg.Clusters {
		var hostSet *upstream.HostSet
		var clusterStats *upstream.ClusterStats

		switch clusterCfg.Type {
		case config.ClusterStatic:
			cluster := upstream.NewStaticCluster(clusterCfg.Name, clusterCfg.LocalZone, clusterCfg.Hosts, s.store, s.logger)
			hostSet = &cluster.HostSet
			clusterStats = cluster.Stats()
		case config.ClusterSds:
			client := newDiscoveryClient(s.dispatcher, clusterCfg.DiscoveryAddress)
			cluster := upstream.NewSdsCluster(clusterCfg.Name, upstream.SdsConfig{
				ServiceName:  clusterCfg.ServiceName,
				RefreshDelay: clusterCfg.RefreshDelay,
				LocalZone:    clusterCfg.LocalZone,
			}, client, s.dispatcher, s.store, s.random, s.logger)
			s.sdsClusters = append(s.sdsClusters, cluster)
			hostSet = &cluster.HostSet
			clusterStats = cluster.Stats()
		default:
			return fmt.Errorf("server: unknown cluster type %q", clusterCfg.Type)
		}

		var lb upstream.LoadBalancer
		switch clusterCfg.LbPolicy {
		case "least_request":
			lb = upstream.NewLeastRequestLoadBalancer(hostSet, nil, clusterStats, s.loader, s.random)
		case "random":
			lb = upstream.NewRandomLoadBalancer(hostSet, nil, clusterStats, s.loader, s.random)
		default:
			lb = upstream.NewRoundRobinLoadBalancer(hostSet, nil, clusterStats, s.loader, s.random)
		}

		s.clusters[clusterCfg.Name] = &proxy.ClusterHandle{
			Name:         clusterCfg.Name,
			HostSet:      hostSet,
			Stats:        clusterStats,
			LoadBalancer: lb,
		}
	}
	return nil
}

func (s *Server) setupListeners() error {
	for i := range s.cfg.Listeners {
		listenerCfg := &s.cfg.Listeners[i]

		routes := make([]proxy.Route, 0, len(listenerCfg.Routes))
		for _, route := range listenerCfg.Routes {
			routes = append(routes, proxy.Route{Prefix: route.Prefix, Cluster: route.Cluster})
		}
		responseAdd := make([]http.HeaderValue, 0, len(listenerCfg.ResponseHeadersToAdd))
		for _, hv := range listenerCfg.ResponseHeadersToAdd {
			responseAdd = append(responseAdd, http.HeaderValue{Name: hv.Name, Value: hv.Value})
		}

		proxyCfg := &proxy.Config{
			Mutation: http.MutationConfig{
				UseRemoteAddress:        listenerCfg.UseRemoteAddress,
				LocalAddress:            listenerCfg.LocalAddress,
				UserAgent:               listenerCfg.UserAgent,
				GenerateRequestID:       listenerCfg.GenerateRequestIDEnabled(),
				InternalOnlyHeaders:     listenerCfg.InternalOnlyHeaders,
				ResponseHeadersToRemove: listenerCfg.ResponseHeadersToRemove,
				ResponseHeadersToAdd:    responseAdd,
			},
			Routes:     routes,
			ServerName: "janus",
		}

		factory := proxy.NewFactory(proxyCfg, s.clusters, s.dispatcher, s.random, s.accessLog, s.store, s.logger)
		listener, err := network.NewListener(s.dispatcher, listenerCfg.Address, factory, s.logger)
		if err != nil {
			return err
		}
		s.listeners = append(s.listeners, listener)
		s.logger.Info("listener ready", "address", listener.LocalAddress())
	}
	return nil
}

func (s *Server) setupAdmin() error {
	listener, err := net.Listen("tcp", s.cfg.Admin.Address)
	if err != nil {
		return fmt.Errorf("server: admin listen %s: %w", s.cfg.Admin.Address, err)
	}
	s.adminListener = listener
	s.adminServer = &stdhttp.Server{Handler: s.newAdminMux()}
	s.logger.Info("admin ready", "address", listener.Addr().String())
	return nil
}

// AdminAddress returns the bound admin address.
func (s *Server) AdminAddress() string { return s.adminListener.Addr().String() }

// ListenerAddresses returns the bound data-plane addresses.
func (s *Server) ListenerAddresses() []string {
	addrs := make([]string, 0, len(s.listeners))
	for _, l := range s.listeners {
		addrs = append(addrs, l.LocalAddress())
	}
	return addrs
}

// Run serves until ctx is cancelled, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	go s.adminServer.Serve(s.adminListener)

	if s.retention != nil {
		if err := s.retention.Start(); err != nil {
			return err
		}
	}
	for _, cluster := range s.sdsClusters {
		cluster.Start()
	}

	done := make(chan struct{})
	go func() {
		s.dispatcher.Run(event.Block)
		close(done)
	}()

	<-ctx.Done()
	s.logger.Info("shutting down")
	s.shutdown()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("dispatcher did not stop in time")
	}
	return nil
}

func (s *Server) shutdown() {
	s.dispatcher.Post(func() {
		for _, cluster := range s.sdsClusters {
			cluster.Shutdown()
		}
		for _, listener := range s.listeners {
			listener.Close()
		}
	})
	s.dispatcher.Exit()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.adminServer.Shutdown(shutdownCtx)

	if s.retention != nil {
		s.retention.Stop()
	}
	if s.sqliteLog != nil {
		s.sqliteLog.Close()
	}
	if s.diskLoader != nil {
		s.diskLoader.Close()
	}
}
