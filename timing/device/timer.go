package device

// Timer register offsets.
const (
	TimerMTime    = 0x0
	TimerMTimeCmp = 0x8
)

const timerWindow = 0x10

// Timer is a machine timer: a 64-bit mtime counter advanced every cycle and
// a compare register.
type Timer struct {
	name     string
	mtime    uint64
	mtimecmp uint64
}

// NewTimer creates a timer. The compare register resets to all ones.
func NewTimer(name string) *Timer {
	return &Timer{name: name, mtimecmp: ^uint64(0)}
}

// Name returns the name of the timer.
func (t *Timer) Name() string {
	return t.name
}

// Size returns the register window size.
func (t *Timer) Size() uint64 {
	return timerWindow
}

// Now returns mtime.
func (t *Timer) Now() uint64 {
	return t.mtime
}

// Pending returns true once mtime reached mtimecmp.
func (t *Timer) Pending() bool {
	return t.mtime >= t.mtimecmp
}

// Read implements Device. Registers are read as a whole or by 32-bit half.
func (t *Timer) Read(offset uint64, size int) (uint64, bool) {
	reg, shift, ok := t.locate(offset, size)
	if !ok {
		return 0, false
	}

	value := *reg >> shift
	if size == 4 {
		value &= 0xffff_ffff
	}

	return value, true
}

// Write implements Device.
func (t *Timer) Write(offset uint64, size int, value uint64) bool {
	reg, shift, ok := t.locate(offset, size)
	if !ok {
		return false
	}

	if size == 8 {
		*reg = value
		return true
	}

	mask := uint64(0xffff_ffff) << shift
	*reg = *reg&^mask | value<<shift&mask

	return true
}

func (t *Timer) locate(offset uint64, size int) (*uint64, uint, bool) {
	if size != 4 && size != 8 || offset%uint64(size) != 0 {
		return nil, 0, false
	}

	var reg *uint64

	switch offset &^ 7 {
	case TimerMTime:
		reg = &t.mtime
	case TimerMTimeCmp:
		reg = &t.mtimecmp
	default:
		return nil, 0, false
	}

	return reg, uint(offset&7) * 8, true
}

// Tick implements Device.
func (t *Timer) Tick() {
	t.mtime++
}
