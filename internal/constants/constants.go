package constants

// Service Port Constants
//
// Default listening ports for the three services. The state service and the
// lobby bind fixed well-known ports; match runtimes scan a dynamic range.

const (
	// DefaultStatePort is the state service's listening port.
	DefaultStatePort = 12977

	// DefaultLobbyPort is the lobby's listening port.
	DefaultLobbyPort = 13472

	// DefaultMatchPort is the port the standalone match binary binds when
	// none is given on the command line.
	DefaultMatchPort = 15234
)

// Match Endpoint Allocation Constants
const (
	// MatchPortMin is the first port tried when allocating a match endpoint.
	MatchPortMin = 15000

	// MatchPortMax is the upper bound of the match port range (exclusive wrap point).
	MatchPortMax = 60000

	// MatchPortTries caps how many ports one allocation may probe.
	MatchPortTries = 2000
)

// Frame Constants
const (
	// FrameHeaderSize is the length prefix size in bytes (u32 big-endian).
	FrameHeaderSize = 4

	// MaxFrameSize is the largest frame body accepted or produced, in bytes.
	MaxFrameSize = 65536

	// DefaultFrameBufSize is the initial capacity of pooled frame buffers.
	// Messages in this system are short command lines; 512 covers nearly all.
	DefaultFrameBufSize = 512
)

// Match Pacing Constants
const (
	// DefaultTickMillis is the gravity tick period advertised to clients
	// and driven by the match runtime's ticker.
	DefaultTickMillis = 500

	// BagSize is the number of pieces per shuffle bag, advertised in WELCOME.
	BagSize = 7
)
