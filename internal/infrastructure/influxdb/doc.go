// Package influxdb records security decision samples in InfluxDB.
//
// It wraps influxdb-client-go v2 with a connect-and-ping constructor, a
// batched non-blocking write path and a health check. Writes on a nil,
// disabled or closed client are dropped silently, so callers can wire the
// client unconditionally:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil && !errors.Is(err, influxdb.ErrDisabled) {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteAuthzDecision("case", "denied", "org-a", "lawyer", 3*time.Millisecond)
//
// Batching follows batch_size and flush_interval from the configuration.
// Failed batches are retried a few times and then dropped; WriteFailures
// reports how many were lost.
package influxdb
