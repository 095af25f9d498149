package packet

// Client → server opcodes.
const (
	C_OPCODE_LOGIN    byte = 1
	C_OPCODE_VALIDATE byte = 2
	C_OPCODE_RUN      byte = 3
	C_OPCODE_WATCH    byte = 4
	C_OPCODE_UNWATCH  byte = 5
	C_OPCODE_GET      byte = 6
	C_OPCODE_GETALL   byte = 7
	C_OPCODE_RESET    byte = 8
	C_OPCODE_PING     byte = 9
	C_OPCODE_CLEAR    byte = 10
	C_OPCODE_EXAMPLES byte = 11
)

// Server → client opcodes.
const (
	S_OPCODE_HELLO    byte = 101
	S_OPCODE_LOGIN    byte = 102
	S_OPCODE_VALIDATE byte = 103
	S_OPCODE_OUTPUT   byte = 104
	S_OPCODE_CHANGE   byte = 105
	S_OPCODE_VALUE    byte = 106
	S_OPCODE_VALUES   byte = 107
	S_OPCODE_RESET    byte = 108
	S_OPCODE_WATCHING byte = 109
	S_OPCODE_PONG     byte = 110
	S_OPCODE_ERROR    byte = 111
	S_OPCODE_EXAMPLES byte = 112
)

// ProtocolVersion is sent in S_HELLO.
const ProtocolVersion = "pyquest/1"
