package ops

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var relayStates = []string{"idle", "connecting", "subscribing", "listening", "failed"}

// relayCollector reads the relay snapshot on every scrape, so the relay
// itself keeps plain atomic counters.
type relayCollector struct {
	rs      RelayStatus
	dropped func() uint64

	sessions      *prometheus.Desc
	notifications *prometheus.Desc
	fetched       *prometheus.Desc
	empty         *prometheus.Desc
	posted        *prometheus.Desc
	postFailed    *prometheus.Desc
	state         *prometheus.Desc
	busDropped    *prometheus.Desc
}

func newRelayCollector(rs RelayStatus, dropped func() uint64) *relayCollector {
	d := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc("rosterbot_"+name, help, labels, nil)
	}
	return &relayCollector{
		rs:            rs,
		dropped:       dropped,
		sessions:      d("relay_sessions_total", "Relay sessions started"),
		notifications: d("relay_notifications_total", "Notifications received"),
		fetched:       d("relay_events_fetched_total", "Roster events fetched"),
		empty:         d("relay_empty_fetches_total", "Wake-ups that found no roster event"),
		posted:        d("relay_posts_total", "Roster messages posted"),
		postFailed:    d("relay_post_failures_total", "Roster messages that failed to post"),
		state:         d("relay_state", "1 for the current relay session state", "state"),
		busDropped:    d("eventbus_dropped_total", "Bus events dropped on full subscribers"),
	}
}

func (c *relayCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.sessions, c.notifications, c.fetched, c.empty, c.posted, c.postFailed, c.state, c.busDropped} {
		ch <- d
	}
}

func (c *relayCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.rs.Snapshot()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.sessions, s.Sessions)
	counter(c.notifications, s.Notifications)
	counter(c.fetched, s.Fetched)
	counter(c.empty, s.EmptyFetches)
	counter(c.posted, s.Posted)
	counter(c.postFailed, s.PostFailed)
	if c.dropped != nil {
		counter(c.busDropped, c.dropped())
	}
	for _, st := range relayStates {
		v := 0.0
		if st == s.State {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, v, st)
	}
}

func newRegistry(rs RelayStatus, dropped func() uint64) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if rs != nil {
		reg.MustRegister(newRelayCollector(rs, dropped))
	}
	return reg
}
