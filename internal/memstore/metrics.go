package memstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	insertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "memoryd",
		Subsystem: "memstore",
		Name:      "inserts_total",
		Help:      "Memory chunks inserted.",
	})

	queriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "memoryd",
		Subsystem: "memstore",
		Name:      "queries_total",
		Help:      "Similarity queries executed.",
	})

	queryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "memoryd",
		Subsystem: "memstore",
		Name:      "query_duration_seconds",
		Help:      "Similarity query latency including scope setup.",
		Buckets:   prometheus.DefBuckets,
	})

	// decryptAnomaliesTotal counts candidates that failed authenticated
	// decryption under their own tenant digest. Legitimately scoped rows
	// never do this; any increment means corruption or a policy bypass
	// attempt and warrants investigation.
	decryptAnomaliesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "memoryd",
		Subsystem: "memstore",
		Name:      "decrypt_anomalies_total",
		Help:      "Candidates dropped because their ciphertext failed to authenticate.",
	})

	expiredSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "memoryd",
		Subsystem: "memstore",
		Name:      "expired_swept_total",
		Help:      "Chunks removed by the TTL sweep.",
	})
)
