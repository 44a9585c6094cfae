// Package lwp provides the subset of LEGO Wireless Protocol used to drive a hub.
package lwp

// Every message starts with a common header:
//
//	[length, hubID, messageType, ...]
//
// where length counts the whole message including itself. Port oriented
// messages carry the port ID right after the message type.
//
// Only the messages needed for motor output, single-port input format setup,
// attached I/O, port values, output command feedback and the firmware version
// hub property are supported. Anything else is reported as unknown and is
// expected to be ignored by the consumer.
//
// Producer: hub (notifications), host (commands)
// Consumer: host (notifications), hub (commands)
