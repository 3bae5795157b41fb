// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesTotal counts frames accepted by the capture filter, by kind
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wisniff_frames_total",
			Help: "Total number of captured management and data frames",
		},
		[]string{"kind"},
	)

	// FramesFilteredTotal counts frames dropped by the capture filter
	FramesFilteredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wisniff_frames_filtered_total",
			Help: "Total number of frames discarded by the kind filter",
		},
	)

	// CaptureBytesTotal sums the on-air length of accepted frames
	CaptureBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wisniff_capture_bytes_total",
			Help: "Total on-air bytes of captured frames",
		},
	)

	// QueueDropsTotal counts records discarded between capture and transport
	QueueDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wisniff_queue_drops_total",
			Help: "Total number of relay records dropped before transmission",
		},
		[]string{"reason"},
	)

	// TransportChunksTotal counts link writes
	TransportChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wisniff_transport_chunks_total",
			Help: "Total number of chunks written to the peer link",
		},
	)

	// TransportBytesTotal counts payload bytes written to the link
	TransportBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wisniff_transport_bytes_total",
			Help: "Total number of bytes written to the peer link",
		},
	)

	// TransportErrorsTotal counts failed sends by error type
	TransportErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wisniff_transport_errors_total",
			Help: "Total number of failed transport sends",
		},
		[]string{"error_type"},
	)

	// PeerConnected is 1 while a peer is connected
	PeerConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wisniff_peer_connected",
			Help: "Whether a peer is currently connected (0/1)",
		},
	)

	// CaptureChannel reports the active channel, 0 when stopped
	CaptureChannel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wisniff_capture_channel",
			Help: "Currently tuned capture channel (0 = not capturing)",
		},
	)

	// HopsTotal counts channel hops by result
	HopsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wisniff_hops_total",
			Help: "Total number of channel hops",
		},
		[]string{"result"},
	)
)

// Label values shared by call sites.
const (
	DropOverflow     = "overflow"
	DropDisconnected = "disconnected"

	ErrTypeNotConnected = "not_connected"
	ErrTypeChunkWrite   = "chunk_write"

	HopOK     = "ok"
	HopFailed = "failed"
)
