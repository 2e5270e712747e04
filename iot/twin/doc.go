/*Package twin provides the digital twin graph: one JSON property document per twin

Twins are changed with JSON patch documents. Every successful change is stored with an
incremented version and published as a change event, the patch together with the twin id and
model id, to the event pipeline.

For working with twins, the API provides the following REST routes:
	GET /twins
	GET /twins/{twin_id}
	GET /twins/{twin_id}/properties/{pointer}
	PUT /twins/{twin_id}
	PATCH /twins/{twin_id}

A PUT replaces model id and properties of a twin. Example:
  curl -X PUT ..../twins/thermostat67 -d '{"modelId":"dtmi:foobar:Thermostat;1","properties":{"Temperature":21}}'

A PATCH applies a JSON patch document:
  curl -X PATCH ..../twins/thermostat67 -d '[{"op":"replace","path":"/Temperature","value":43}]'

Properties can be read individually with a JSON pointer:
  curl ..../twins/thermostat67/properties/Temperature
  43

A twin that does not exist yet is created by its first patch.

Database Requirements

The graph creates the table "_twin_" in the schema of the database.
*/
package twin
