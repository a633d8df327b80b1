package constants

// PSO (Dreamcast / GameCube / PC) Protocol Constants
//
// This file contains the wire-level constants of the PSO client/server protocol.
// Values must match the legacy clients byte for byte.

// Message Header Constants
//
// Header format (4 bytes, little-endian):
//
//	[id 1 byte]
//	[flags 1 byte]
//	[size 2 bytes LE] (includes the header itself)
const (
	// MessageHeaderSize is the size of the message header in bytes
	MessageHeaderSize = 4

	// CipherWordSize is the unit the stream ciphers operate on (one LE uint32)
	CipherWordSize = 4
)

// Session Init Message Constants
//
// The first message a server sends on a new connection is always cleartext:
//
//	[header 4 bytes]
//	[copyright message 64 bytes, NUL padded]
//	[server key 4 bytes LE]
//	[client key 4 bytes LE]
//	[optional trailing text, ignored]
//	Minimum total: 76 bytes
const (
	// SessionInitIDLoginServer is the message id of the login server init
	SessionInitIDLoginServer = 0x17

	// SessionInitIDShipServer is the message id of the ship (lobby) server init
	SessionInitIDShipServer = 0x02

	// CopyrightMessageSize is the fixed length of the copyright field
	CopyrightMessageSize = 64

	// SessionInitMinSize is the minimum size of a session init message
	SessionInitMinSize = MessageHeaderSize + CopyrightMessageSize + 8
)

// Copyright strings carried by the session init message. Each is exactly
// CopyrightMessageSize bytes with its NUL padding.
const (
	LoginServerCopyright = "DreamCast Port Map. Copyright SEGA Enterprises. 1999\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00"
	ShipServerCopyright  = "DreamCast Lobby Server. Copyright SEGA Enterprises. 1999\x00\x00\x00\x00\x00\x00\x00\x00"
)

// Stream Cipher Constants
const (
	// GCStreamLength is the key table size of the GameCube cipher (variant A)
	GCStreamLength = 521

	// GCSeedRounds is the number of words produced by the seed recurrence
	GCSeedRounds = 17

	// GCSeedMultiplier is the LCG multiplier of the GameCube key schedule
	GCSeedMultiplier = 0x5D588B65

	// GCRefillWindow is the start of the upper sub-range XORed into the table on refill
	GCRefillWindow = 489

	// PCStreamLength is the key table size of the PC cipher (variant B)
	PCStreamLength = 57

	// PCSeedStep is the index step of the PC key schedule
	PCSeedStep = 0x15

	// PCSeedLimit is the last index value of the PC key schedule
	PCSeedLimit = 0x46E
)

// Buffer Size Constants
const (
	// DefaultPeerBufSize is the initial capacity of per-peer pending buffers
	DefaultPeerBufSize = 1024

	// DefaultSnapLen is the snapshot length written into synthesized captures
	DefaultSnapLen = 65536
)
