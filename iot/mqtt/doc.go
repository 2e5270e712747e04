/*Package mqtt provides the IoT broker which feeds device telemetry into the twin graph

Devices authenticate with a TLS client certificate. The common name of the certificate is the
device id and must match the MQTT client id.

The broker supports the following MQTT topics:

	twinrelay/{device_id}/telemetry
	twinrelay/{device_id}/twin/get
	twinrelay/{device_id}/twin
	twinrelay/{device_id}/twin/patch

Telemetry

A device publishes its readings as a JSON object to /telemetry, for example
  {"temperature": 21.5, "airflow": 42, "IsOccupied": true}

The known fields temperature, airflow, IsOccupied and State are turned into a JSON patch of
the device's twin. Unknown fields are ignored. The patch then travels through the event
pipeline like any other twin change.

Retrieving the Twin

After establishing the connection, a device publishes an empty message to /twin/get and
receives its twin on /twin. Patches applied through the REST API are forwarded to
/twin/patch. A device can only subscribe to these two topics.

Simulated Devices

The broker also implements the simulator's reporter, so simulated devices report their
readings through the same telemetry path without a network connection.
*/
package mqtt
