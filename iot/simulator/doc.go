/*
Package simulator generates readings for mock devices.

A device is driven by a plugin which produces one value per capability and cycle:

  - hvac: a temperature oscillating between the configured bounds (triangle wave) and an
    airflow percentage derived from where the temperature sits between those bounds
  - smartbinary: a presence flag which is on with a configured probability

Plugins keep their per-device state in a Store that is handed to them by the owner of the
devices. Cycles of different devices may run in parallel, cycles of the same device must be
serialized by the caller. Loop does exactly that: one goroutine per device, capabilities
cycled one after the other.
*/
package simulator
