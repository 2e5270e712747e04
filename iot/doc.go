// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*Package iot provides the IoT side of twinrelay

Devices publish telemetry to the MQTT broker (package mqtt). The telemetry is turned into a
patch (package patch) and applied to the device's digital twin (package twin), which publishes
a change event to the event pipeline. The relay (package relay) consumes the change events,
flattens them into time series records and forwards them to the configured sinks and to the
realtime hub (package broadcast).

Mock devices are provided by package simulator.

MQTT topics are

	twinrelay/{device_id}/telemetry
	twinrelay/{device_id}/twin/get
	twinrelay/{device_id}/twin
	twinrelay/{device_id}/twin/patch

*/
package iot
