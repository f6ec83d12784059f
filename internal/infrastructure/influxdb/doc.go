// Package influxdb writes relay telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Two measurements are
// written:
//   - relay_messages: one point per arrived message, tagged with its outcome
//     (relayed, ignored, incomplete, dropped) and the device ID when known
//   - relay_connection: one point per broker connection state change
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteRelayOutcome("relayed", "dev1")
//
// # Error Handling
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Asynchronous write errors are delivered to the callback set
// with SetOnError. Connection errors are returned directly.
package influxdb
