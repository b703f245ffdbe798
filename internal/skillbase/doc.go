// Package skillbase carries the slice of the assistant framework a
// skill plugs into: the skill lifecycle contract and the MQTT runner
// that connects it to the broker.
//
// The runner uses Eclipse Paho v2's [autopaho] package for connection
// management with automatic reconnection. On every (re-)connect it
// publishes a retained "online" birth message to the skill's
// availability topic and re-subscribes to the intent analysis topic. A
// will message ensures the availability topic transitions to "offline"
// on unexpected disconnects.
//
// Intent messages are certainty-gated: each decoded intent is scored
// by the skill, and only intents at or above [CertaintyThreshold] are
// handled, each in its own goroutine. Failures inside a handler never
// propagate past that goroutine.
package skillbase
