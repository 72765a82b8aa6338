package crypto

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// keyRotationsTotal counts key rotations (manual and file-triggered).
	keyRotationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "memoryd",
			Subsystem: "crypto",
			Name:      "key_rotations_total",
			Help:      "Total number of data key rotations applied to the keyring",
		},
	)
)
