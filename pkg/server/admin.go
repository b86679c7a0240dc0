package server

import (
	"fmt"
	stdhttp "net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newAdminMux builds the admin endpoint: Prometheus metrics, liveness and a
// text dump of cluster membership.
func (s *Server) newAdminMux() *stdhttp.ServeMux {
	mux := stdhttp.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(s.store.Registry(), promhttp.HandlerOpts{}))

	mux.HandleFunc("/healthz", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		w.WriteHeader(stdhttp.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	mux.HandleFunc("/clusters", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		// Membership is read from the loop to keep host-set access
		// single-threaded.
		type clusterLine struct {
			name    string
			total   int
			healthy int
			hosts   []string
		}
		done := make(chan []clusterLine, 1)
		s.dispatcher.Post(func() {
			lines := make([]clusterLine, 0, len(s.clusters))
			for name, handle := range s.clusters {
				line := clusterLine{
					name:    name,
					total:   len(handle.HostSet.Hosts()),
					healthy: len(handle.HostSet.HealthyHosts()),
				}
				for _, host := range handle.HostSet.Hosts() {
					state := "healthy"
					if !host.Healthy() {
						state = "unhealthy"
					}
					line.hosts = append(line.hosts,
						fmt.Sprintf("  %s zone=%q weight=%d rq_active=%d %s",
							host.Address(), host.Zone(), host.Weight(),
							host.Stats().RqActive.Load(), state))
				}
				lines = append(lines, line)
			}
			sort.Slice(lines, func(i, j int) bool { return lines[i].name < lines[j].name })
			done <- lines
		})

		for _, line := range <-done {
			fmt.Fprintf(w, "%s: %d/%d healthy\n", line.name, line.healthy, line.total)
			for _, host := range line.hosts {
				fmt.Fprintln(w, host)
			}
		}
	})

	return mux
}
