// Package notify fans registry and alarm events out to observers.
//
// The Dispatcher sits between the emergency path and everything that
// merely watches it: the WebSocket hub, MQTT, event history. Producers
// enqueue without blocking and the single worker delivers in order;
// when an observer cannot keep up, events are dropped and counted
// rather than letting the backlog reach back into the alarm path.
package notify
