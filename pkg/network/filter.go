package network

import "meridian-hq/janus/pkg/buffer"

// FilterStatus is returned by filter callbacks to control chain iteration.
type FilterStatus int

const (
	// Continue passes the event to the next filter in the chain.
	Continue FilterStatus = iota
	// StopIteration halts the chain; it resumes when the stopping filter
	// calls ContinueReading (read side) or new data is written (write side).
	StopIteration
)

// ReadFilterCallbacks is handed to each read filter at registration. The
// connection reference is valid for the filter's lifetime only and must not
// be retained past connection close.
type ReadFilterCallbacks interface {
	// Connection returns the connection the filter is installed on.
	Connection() *Connection

	// ContinueReading resumes the read chain after this filter returned
	// StopIteration, starting with the next filter.
	ContinueReading()
}

// ReadFilter processes bytes flowing up from the socket.
type ReadFilter interface {
	// OnNewConnection is called once when the chain first runs.
	OnNewConnection() FilterStatus

	// OnData is called with the connection's read buffer each time new
	// bytes are available. Filters may drain or mutate the buffer.
	OnData(data *buffer.Buffer) FilterStatus

	// InitializeReadFilterCallbacks is called once when the filter is
	// installed, before any event.
	InitializeReadFilterCallbacks(callbacks ReadFilterCallbacks)
}

// WriteFilter processes bytes flowing down toward the socket.
type WriteFilter interface {
	// OnWrite is called with the pending write data before it is moved to
	// the connection's write buffer.
	OnWrite(data *buffer.Buffer) FilterStatus
}

// Filter is a combined read/write filter.
type Filter interface {
	ReadFilter
	WriteFilter
}

// FilterManager owns a connection's ordered read and write filter chains.
type FilterManager struct {
	conn *Connection

	readFilters  []*activeReadFilter
	writeFilters []WriteFilter
}

// activeReadFilter tracks per-filter chain state and implements
// ReadFilterCallbacks for its filter.
type activeReadFilter struct {
	manager     *FilterManager
	filter      ReadFilter
	index       int
	initialized bool
}

func (a *activeReadFilter) Connection() *Connection { return a.manager.conn }

func (a *activeReadFilter) ContinueReading() { a.manager.onContinueReading(a) }

func newFilterManager(conn *Connection) *FilterManager {
	return &FilterManager{conn: conn}
}

// AddReadFilter appends a filter to the read chain. Adding during iteration
// is legal; the new filter is not invoked for the in-flight event.
func (fm *FilterManager) AddReadFilter(filter ReadFilter) {
	active := &activeReadFilter{manager: fm, filter: filter, index: len(fm.readFilters)}
	filter.InitializeReadFilterCallbacks(active)
	fm.readFilters = append(fm.readFilters, active)
}

// AddWriteFilter appends a filter to the write chain.
func (fm *FilterManager) AddWriteFilter(filter WriteFilter) {
	fm.writeFilters = append(fm.writeFilters, filter)
}

// AddFilter installs a combined filter on both chains.
func (fm *FilterManager) AddFilter(filter Filter) {
	fm.AddReadFilter(filter)
	fm.AddWriteFilter(filter)
}

// OnRead runs the read chain against the connection's read buffer.
func (fm *FilterManager) OnRead() {
	if fm.conn.readBuffer.Length() == 0 {
		return
	}
	fm.onContinueReading(nil)
}

// onContinueReading iterates the read chain, starting from the beginning or
// from the filter after the one that previously stopped. The chain length
// is captured up front so filters appended mid-iteration wait for the next
// event.
func (fm *FilterManager) onContinueReading(after *activeReadFilter) {
	start := 0
	if after != nil {
		start = after.index + 1
	}
	end := len(fm.readFilters)
	for i := start; i < end; i++ {
		active := fm.readFilters[i]
		if !active.initialized {
			active.initialized = true
			if active.filter.OnNewConnection() == StopIteration {
				return
			}
		}
		if fm.conn.readBuffer.Length() > 0 {
			if active.filter.OnData(fm.conn.readBuffer) == StopIteration {
				return
			}
		}
	}
}

// OnWrite runs the write chain against data pending on the connection.
func (fm *FilterManager) OnWrite() FilterStatus {
	end := len(fm.writeFilters)
	for i := 0; i < end; i++ {
		if fm.writeFilters[i].OnWrite(fm.conn.currentWriteData) == StopIteration {
			return StopIteration
		}
	}
	return Continue
}
