package newer

import "time"

// Decision is what the filter did with one source.
type Decision int

const (
	// Emitted sources were passed downstream as soon as they were decided.
	Emitted Decision = iota
	// Suppressed sources were up to date and dropped.
	Suppressed
	// Buffered sources are held in aggregate mode pending a newer sibling.
	Buffered
	// Flushed sources were buffered and then emitted because a later source
	// was newer than the aggregate destination.
	Flushed
	// Discarded sources were still buffered at end of stream.
	Discarded
)

func (d Decision) String() string {
	switch d {
	case Emitted:
		return "emitted"
	case Suppressed:
		return "suppressed"
	case Buffered:
		return "buffered"
	case Flushed:
		return "flushed"
	case Discarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// aggregateState tracks sources compared against one shared destination.
// Once passAll is set, buffered is empty and stays empty.
type aggregateState struct {
	buffered []*Source
	passAll  bool
}

// next applies one arriving source. It returns the new state, the sources
// to emit in order, and the decision for src itself. When src triggers a
// flush the previously buffered sources come first in the returned slice.
func (s aggregateState) next(src *Source, destModTime time.Time) (aggregateState, []*Source, Decision) {
	switch {
	case s.passAll:
		return s, []*Source{src}, Emitted
	case !src.newerThan(destModTime):
		buffered := make([]*Source, len(s.buffered), len(s.buffered)+1)
		copy(buffered, s.buffered)
		return aggregateState{buffered: append(buffered, src)}, nil, Buffered
	default:
		out := make([]*Source, 0, len(s.buffered)+1)
		out = append(out, s.buffered...)
		out = append(out, src)
		return aggregateState{passAll: true}, out, Emitted
	}
}

// drain ends the stream: it returns the sources that were never emitted and
// a state that holds no references.
func (s aggregateState) drain() (aggregateState, []*Source) {
	return aggregateState{passAll: s.passAll}, s.buffered
}
