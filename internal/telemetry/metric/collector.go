package metric

import "github.com/prometheus/client_golang/prometheus"

// Stats is a point-in-time view of the node.
type Stats struct {
	LivePeers     int
	Channels      int
	Leader        bool
	Sessions      int
	LocalSessions int
	Instances     int
}

// StatsFunc returns the current node stats. It is called on every scrape.
type StatsFunc func() Stats

// Collector reports node state gauges at scrape time.
type Collector struct {
	stats StatsFunc

	livePeers     *prometheus.Desc
	channels      *prometheus.Desc
	leader        *prometheus.Desc
	sessions      *prometheus.Desc
	localSessions *prometheus.Desc
	instances     *prometheus.Desc
}

// NewCollector creates a collector backed by fn.
func NewCollector(fn StatsFunc) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return &Collector{
		stats:         fn,
		livePeers:     desc("live_peers", "Live peers other than self."),
		channels:      desc("established_channels", "Established peer channels."),
		leader:        desc("leader", "1 when this peer is the leader."),
		sessions:      desc("directory_sessions", "Sessions known to the directory."),
		localSessions: desc("local_sessions", "Sessions owned by this peer."),
		instances:     desc("directory_instances", "Zone instances known to the directory."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.livePeers
	ch <- c.channels
	ch <- c.leader
	ch <- c.sessions
	ch <- c.localSessions
	ch <- c.instances
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	leader := 0.0
	if s.Leader {
		leader = 1
	}
	ch <- prometheus.MustNewConstMetric(c.livePeers, prometheus.GaugeValue, float64(s.LivePeers))
	ch <- prometheus.MustNewConstMetric(c.channels, prometheus.GaugeValue, float64(s.Channels))
	ch <- prometheus.MustNewConstMetric(c.leader, prometheus.GaugeValue, leader)
	ch <- prometheus.MustNewConstMetric(c.sessions, prometheus.GaugeValue, float64(s.Sessions))
	ch <- prometheus.MustNewConstMetric(c.localSessions, prometheus.GaugeValue, float64(s.LocalSessions))
	ch <- prometheus.MustNewConstMetric(c.instances, prometheus.GaugeValue, float64(s.Instances))
}
