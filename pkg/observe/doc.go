// Package observe provides bulk.Lifecycle implementations that log and
// export Prometheus metrics for every dispatch.
//
//	metrics, err := observe.NewMetricsLifecycle(prometheus.DefaultRegisterer)
//	if err != nil {
//	    return err
//	}
//	op := bulk.New(t, bulk.WithLifecycle(bulk.Chain(
//	    observe.NewLoggingLifecycle(logger),
//	    metrics,
//	    bulk.NewRequeueLifecycle(logger),
//	)))
package observe
