package main

import (
	"github.com/bpbp-boop/fping-exporter/probe"
	"github.com/prometheus/client_golang/prometheus"
)

const prefix = "ping_"

func newDesc(name, help string, variableLabels []string, constLabels prometheus.Labels) *prometheus.Desc {
	return prometheus.NewDesc(prefix+name, help, variableLabels, constLabels)
}

var (
	labelNames   = []string{"address"}
	sentDesc     = newDesc("packets_sent", "Number of ping packets sent", labelNames, nil)
	receivedDesc = newDesc("packets_received", "Number of ping packets received", labelNames, nil)
	lossDesc     = newDesc("packet_loss_percent", "Percent of ping packets lost", labelNames, nil)
)

type snapshotter interface {
	Snapshot() []probe.Sample
}

// pingCollector exposes the latest sample of every address. It holds no
// state of its own; every scrape renders a fresh registry snapshot.
type pingCollector struct {
	samples snapshotter
	rttDesc scaledMetrics
}

func newPingCollector(samples snapshotter, scale rttUnit) *pingCollector {
	return &pingCollector{
		samples: samples,
		rttDesc: newScaledDesc("rtt", "Ping round trip time", scale, append(labelNames, "sample")),
	}
}

func (p *pingCollector) Describe(ch chan<- *prometheus.Desc) {
	p.rttDesc.Describe(ch)
	ch <- sentDesc
	ch <- receivedDesc
	ch <- lossDesc
}

func (p *pingCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range p.samples.Snapshot() {
		addr := s.Address.String()

		// fully lost addresses have no round trip times at all
		if s.RTT != nil {
			p.rttDesc.Collect(ch, s.RTT.Min, addr, "minimum")
			p.rttDesc.Collect(ch, s.RTT.Avg, addr, "average")
			p.rttDesc.Collect(ch, s.RTT.Max, addr, "maximum")
		}

		ch <- prometheus.MustNewConstMetric(sentDesc, prometheus.GaugeValue, float64(s.Sent), addr)
		ch <- prometheus.MustNewConstMetric(receivedDesc, prometheus.GaugeValue, float64(s.Received), addr)
		ch <- prometheus.MustNewConstMetric(lossDesc, prometheus.GaugeValue, float64(s.LossPercent), addr)
	}
}
