// Package protocol implements the binary wire format between a page and
// its host.
//
// Committed command batches flow from the page to the host; element
// events flow back. Both travel inside frames.
//
// # Wire Format
//
// Every frame starts with a one byte type followed by the payload length
// as an unsigned varint:
//
//	┌─────────────┬───────────────────────────────┐
//	│ Frame Type  │ Payload Length                │
//	│ (1 byte)    │ (varint)                      │
//	└─────────────┴───────────────────────────────┘
//	│  Payload (variable length)                  │
//	└─────────────────────────────────────────────┘
//
// # Frame Types
//
//   - FrameCommands (0x01): page → host command batch
//   - FrameEvent (0x02): host → page element event
//   - FrameError (0x03): page → host error report
//   - FramePing (0x04): keepalive, empty payload
//
// # Encoding
//
//   - Varint: unsigned integers (protobuf-style)
//   - ZigZag: signed integers as unsigned varints
//   - Length-prefixed: strings prefixed with their varint length
//   - Tagged values: one tag byte, then the value (see value.go)
//
// # Command Batches
//
//	[DocID: string][Count: varint]
//	  [Op: byte][Mask: varint][fields selected by Mask]...
//
// # Events
//
//	[DocID: string][Ref: svarint][Type: string][Detail: value]
package protocol
