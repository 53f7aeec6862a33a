package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var invalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "blogweb_query_cache_invalidated_keys_total",
	Help: "Total number of query cache keys removed by URL-based invalidation.",
})
