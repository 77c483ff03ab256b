package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_store_failures_total",
			Help: "Cart persistence failures swallowed by the store adapter",
		},
		[]string{"op"},
	)

	storeWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_cart_store_writes_total",
			Help: "Successful write-through saves of the cart",
		},
	)
)
