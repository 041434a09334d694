// Package relay converts MQTT telemetry messages into InfluxDB points.
//
// This package manages:
//   - Decoding telemetry JSON into line-protocol points
//   - Batching points and flushing on size or timer
//   - Delivery through the influxline client (HTTP or UDP)
//   - A SQLite dead-letter journal for failed batches
//
// # Architecture
//
// Sensors publish JSON documents to the broker. The relay subscribes to
// the configured topic patterns, converts each message into a point, and
// accumulates points until the batch is full or the flush timer fires.
//
//	{"measurement": "env", "tags": {...}, "fields": {...}, "timestamp": n}
//
// A batch that cannot be delivered is stored in the journal as its
// serialized line-protocol body. After each successful flush the relay
// drains the journal oldest-first, so writes survive database outages
// and relay restarts.
//
// # Message Format
//
//   - measurement: required, the measurement name
//   - tags: optional string-to-string map
//   - fields: required map; JSON numbers become floats, booleans and
//     strings keep their type
//   - timestamp: optional integer epoch in the configured precision;
//     messages without one are stamped at receipt
//
// # Usage
//
//	journal, err := relay.OpenJournal(cfg.Relay.Journal)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer journal.Close()
//
//	r, err := relay.Start(relay.Options{
//	    Config:     cfg.Relay,
//	    Precision:  influxline.Nanoseconds,
//	    QoS:        1,
//	    Subscriber: mqttClient,
//	    Writer:     relay.NewHTTPWriter(client, influxline.Nanoseconds, ""),
//	    Journal:    journal,
//	    Logger:     logger,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
package relay
