/*Package relay turns twin change events into flattened time-series records

A source (kafka or SQS) delivers change events, JSON encoded patch.Message values. The relay
flattens every event with patch.FlattenMessage and writes the resulting record to all sinks:
the time-series store, a kafka topic or the object archive. Events which flatten to nothing,
e.g. patches with only remove operations, are not written. Every event is also pushed to the
realtime broadcaster, if one is configured.

Events are handled at most once. A failed event is logged, counted and then acknowledged.
*/
package relay
