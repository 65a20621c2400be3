package simcard

type options struct {
	store           Store
	blocks          uint32
	resetStatus     byte
	version1        bool
	highCapacity    bool
	probeStatus     *byte
	probeVoltage    *byte
	probePattern    *byte
	initPolls       int
	responseLatency int
	readLatency     int
	writeLatency    int
	programmingBusy int
	readToken       *byte
	writeResponse   *byte
	overrides       map[byte]byte
}

func defaultOptions() options {
	return options{
		blocks:       2048,
		resetStatus:  r1Idle,
		highCapacity: true,
		initPolls:    2,
		overrides:    map[byte]byte{},
	}
}

// Option configures a simulated card.
type Option func(*options)

// WithStore backs the card with s. It overrides WithBlocks.
func WithStore(s Store) Option {
	return func(o *options) { o.store = s }
}

// WithBlocks sets the capacity of the default memory store.
func WithBlocks(n uint32) Option {
	return func(o *options) { o.blocks = n }
}

// WithResetStatus sets the R1 answered to GO_IDLE_STATE.
func WithResetStatus(r1 byte) Option {
	return func(o *options) { o.resetStatus = r1 }
}

// WithVersion1 makes the card predate SEND_IF_COND: it answers it with an
// illegal-command R1 and nothing else, and never grants high capacity.
func WithVersion1() Option {
	return func(o *options) { o.version1 = true }
}

// WithStandardCapacity makes the card ignore the HCS bit, so commands keep byte
// addressing.
func WithStandardCapacity() Option {
	return func(o *options) { o.highCapacity = false }
}

// WithProbeStatus replaces the R1 of SEND_IF_COND, keeping the echoed bytes.
func WithProbeStatus(r1 byte) Option {
	return func(o *options) { o.probeStatus = &r1 }
}

// WithProbeVoltage replaces the accepted voltage code of the R7 response.
func WithProbeVoltage(v byte) Option {
	return func(o *options) { o.probeVoltage = &v }
}

// WithProbePattern replaces the echoed check pattern of the R7 response.
func WithProbePattern(p byte) Option {
	return func(o *options) { o.probePattern = &p }
}

// WithInitPolls sets how many SD_SEND_OP_COND polls answer idle before the card
// becomes ready.
func WithInitPolls(n int) Option {
	return func(o *options) { o.initPolls = n }
}

// WithResponseLatency inserts n fill bytes before every command response (Ncr).
func WithResponseLatency(n int) Option {
	return func(o *options) { o.responseLatency = n }
}

// WithReadLatency inserts n fill bytes between the R1 of a read and its token.
func WithReadLatency(n int) Option {
	return func(o *options) { o.readLatency = n }
}

// WithWriteLatency inserts n fill bytes between the write CRC slots and the data
// response token.
func WithWriteLatency(n int) Option {
	return func(o *options) { o.writeLatency = n }
}

// WithProgrammingBusy holds the data line low for n bytes after the data response.
func WithProgrammingBusy(n int) Option {
	return func(o *options) { o.programmingBusy = n }
}

// WithReadToken makes every read answer with token instead of a data block.
func WithReadToken(token byte) Option {
	return func(o *options) { o.readToken = &token }
}

// WithWriteResponse makes every write answer with the given data response token.
// Blocks are only stored when the token carries the accepted code.
func WithWriteResponse(token byte) Option {
	return func(o *options) { o.writeResponse = &token }
}

// WithCommandStatus makes the card answer every command with the given index
// with r1 only.
func WithCommandStatus(index byte, r1 byte) Option {
	return func(o *options) { o.overrides[index] = r1 }
}
