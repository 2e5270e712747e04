/*
Package patch turns digital twin patch documents into flat records for the time series store.

A patch document is a list of JSON patch operations. Every add or replace operation
contributes one property to the record: the path "/Front/Temperature" becomes the key
"Front.Temperature". Properties whose name contains one of the boolean patterns (see
CoercionRules) are written as 1 or 0, all other values pass through unchanged. The record is
tagged with the twin id under the key "$dtId".

	rec, err := patch.Flatten("thermostat67", patch.Document{
		{Op: patch.Replace, Path: "/Front/Temperature", Value: json.RawMessage("43")},
	})
	// rec: {"Front.Temperature": 43, "$dtId": "thermostat67"}

Flatten keeps no state and is safe for concurrent use. A nil record means there is nothing
to emit and must not be forwarded.

The package also provides the inverse direction used by the device ingest, FromTelemetry,
and the realtime broadcast shape of a patch, Broadcast.
*/
package patch
