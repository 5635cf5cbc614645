package slotset

import (
	"strings"

	"github.com/cuemby/batchsched/pkg/interval"
	"github.com/cuemby/batchsched/pkg/types"
)

// MaxTime is the sentinel "+∞" instant the final slot of any SlotSet
// ends at.
const MaxTime int64 = 1 << 62

// SlotSet is a doubly-linked list of Slots keyed by stable integer sid,
// implemented as an arena to avoid ownership cycles (design note:
// "Cyclic structure"). It is not safe for concurrent use; the
// meta-scheduler is a single-threaded cooperative loop (spec §5) and
// never shares a SlotSet across goroutines.
type SlotSet struct {
	slots   map[int]*types.Slot
	firstSID int
	nextSID  int
}

// New creates a SlotSet with a single slot [t0, +∞] carrying itvs as
// its free set.
func New(itvs interval.Set, t0 int64) *SlotSet {
	ss := &SlotSet{slots: make(map[int]*types.Slot)}
	sid := ss.alloc()
	ss.slots[sid] = &types.Slot{
		SID: sid, Prev: 0, Next: 0,
		Begin: t0, End: MaxTime,
		Itvs: itvs,
	}
	ss.firstSID = sid
	return ss
}

func (ss *SlotSet) alloc() int {
	ss.nextSID++
	return ss.nextSID
}

// FirstSID returns the sid of the earliest slot.
func (ss *SlotSet) FirstSID() int { return ss.firstSID }

// Slot returns the slot for sid, or nil if it doesn't exist.
func (ss *SlotSet) Slot(sid int) *types.Slot { return ss.slots[sid] }

// Len returns the number of slots currently in the set (test/debug
// helper).
func (ss *SlotSet) Len() int { return len(ss.slots) }

// find returns the sid of the slot containing instant t, walking the
// list from the first slot. Linear, as permitted by spec §4.3.
func (ss *SlotSet) find(t int64) int {
	for sid := ss.firstSID; sid != 0; {
		s := ss.slots[sid]
		if t >= s.Begin && t <= s.End {
			return sid
		}
		sid = s.Next
	}
	return 0
}

// splitAt ensures a slot boundary exists exactly at t (i.e. some slot's
// Begin == t), splitting the slot containing t if necessary, and
// returns the sid of that slot. Splitting preserves the free set on
// both halves.
func (ss *SlotSet) splitAt(t int64) int {
	sid := ss.find(t)
	if sid == 0 {
		return 0
	}
	s := ss.slots[sid]
	if s.Begin == t {
		return sid
	}
	// s.Begin < t <= s.End: split into [s.Begin, t-1] and [t, s.End].
	rightSID := ss.alloc()
	right := &types.Slot{
		SID: rightSID, Prev: sid, Next: s.Next,
		Begin: t, End: s.End,
		Itvs:        append(interval.Set(nil), s.Itvs...),
		TSOccupants: cloneOccupants(s.TSOccupants),
	}
	if s.Next != 0 {
		ss.slots[s.Next].Prev = rightSID
	}
	s.Next = rightSID
	s.End = t - 1
	ss.slots[rightSID] = right
	return rightSID
}

func cloneOccupants(in []types.TSOccupant) []types.TSOccupant {
	if len(in) == 0 {
		return nil
	}
	out := make([]types.TSOccupant, len(in))
	for i, o := range in {
		out[i] = types.TSOccupant{Tag: o.Tag, Itvs: append(interval.Set(nil), o.Itvs...)}
	}
	return out
}

// EncompassingSlots returns (sidLeft, sidRight), splitting slots as
// needed so that sidLeft.Begin == tBegin and sidRight.End == tEnd.
// Corresponds to spec §4.3's encompassing(t_begin, t_end).
func (ss *SlotSet) EncompassingSlots(tBegin, tEnd int64) (sidLeft, sidRight int) {
	sidLeft = ss.splitAt(tBegin)
	if sidLeft == 0 {
		return 0, 0
	}
	// Splitting at tEnd+1 leaves the slot ending at tEnd as the right
	// boundary (unless tEnd is already +∞, which never needs a split).
	if tEnd < MaxTime {
		ss.splitAt(tEnd + 1)
	}
	sidRight = ss.find(tEnd)
	return sidLeft, sidRight
}

// Walk calls fn for every slot from sidLeft to sidRight inclusive, in
// time order.
func (ss *SlotSet) Walk(sidLeft, sidRight int, fn func(*types.Slot)) {
	for sid := sidLeft; sid != 0; {
		s := ss.slots[sid]
		fn(s)
		if sid == sidRight {
			return
		}
		sid = s.Next
	}
}

// IntersecItvsSlots returns the intersection of Itvs across every slot
// in [sidLeft, sidRight].
func (ss *SlotSet) IntersecItvsSlots(sidLeft, sidRight int) interval.Set {
	var result interval.Set
	first := true
	ss.Walk(sidLeft, sidRight, func(s *types.Slot) {
		if first {
			result = s.Itvs
			first = false
			return
		}
		result = interval.Intersect(result, s.Itvs)
	})
	return result
}

// IntersecTsPhItvsSlots is IntersecItvsSlots but additionally unions
// back in, per slot, any resources held by a timesharing/placeholder
// occupant compatible with job — per spec's open question, the
// timesharing tag is split on ',' into (user_part, name_part), each
// either literal or "*", and two jobs are compatible iff each part
// equals or is "*".
func (ss *SlotSet) IntersecTsPhItvsSlots(sidLeft, sidRight int, job *types.Job) interval.Set {
	tag := TimesharingTag(job)
	var result interval.Set
	first := true
	ss.Walk(sidLeft, sidRight, func(s *types.Slot) {
		avail := s.Itvs
		if tag != "" {
			for _, occ := range s.TSOccupants {
				if Compatible(tag, occ.Tag) {
					avail = interval.Union(avail, occ.Itvs)
				}
			}
		}
		if first {
			result = avail
			first = false
			return
		}
		result = interval.Intersect(result, avail)
	})
	return result
}

// TimesharingTag returns the job's timesharing/placeholder compatibility
// key, or "" if the job carries neither.
func TimesharingTag(job *types.Job) string {
	if job.TimeSharing {
		if tag, ok := job.Types[types.JobTypeTimesharing]; ok && tag != "" {
			return tag
		}
		return "*,*"
	}
	if job.Placeholder == types.UsePlaceholder {
		return job.Types[types.JobTypePlaceholder]
	}
	return ""
}

// Compatible implements the open-question compatibility predicate:
// split each tag on "," into (user_part, name_part); two jobs are
// compatible iff each part is equal or either is "*".
func Compatible(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	pa := strings.SplitN(a, ",", 2)
	pb := strings.SplitN(b, ",", 2)
	for len(pa) < 2 {
		pa = append(pa, "*")
	}
	for len(pb) < 2 {
		pb = append(pb, "*")
	}
	return partMatch(pa[0], pb[0]) && partMatch(pa[1], pb[1])
}

func partMatch(a, b string) bool {
	return a == "*" || b == "*" || a == b
}

// SplitSlotsJobs mutates the set for each job in input order: locates
// the slots spanning [Start, Start+Walltime-securityTime), splits slot
// boundaries to align with that window, then subtracts the job's
// resources from every covered slot's free set, unless the job is
// flagged ALLOW_PLACEHOLDER (intentionally not blocking) per the
// glossary. Timesharing and USE_PLACEHOLDER jobs still have their
// resources subtracted from the general free set (so incompatible jobs
// can't use them) but are additionally recorded as a TSOccupant so a
// compatible future job can reclaim them via
// IntersecTsPhItvsSlots.
func (ss *SlotSet) SplitSlotsJobs(jobs []*types.Job, securityTime int64) {
	for _, job := range jobs {
		if job.Walltime <= securityTime || len(job.ResSet) == 0 {
			continue
		}
		tEnd := job.StartTime + job.Walltime - securityTime - 1
		sidLeft, sidRight := ss.EncompassingSlots(job.StartTime, tEnd)
		if sidLeft == 0 {
			continue
		}

		if job.HasType(types.JobTypeAllow) {
			continue
		}

		tag := TimesharingTag(job)
		ss.Walk(sidLeft, sidRight, func(s *types.Slot) {
			s.Itvs = interval.Subtract(s.Itvs, job.ResSet)
			if tag != "" {
				s.TSOccupants = append(s.TSOccupants, types.TSOccupant{
					Tag:  tag,
					Itvs: job.ResSet,
				})
			}
		})
	}
}

// ApplyAvailability folds each of resourceSet's future retirement
// instants into the calendar as a synthetic, unconditional
// resource-removal spanning [t, +∞) (spec's "pseudo job" supplement,
// grounded in oar_kao/meta_sched.py's JobPseudo loop). Each instant's
// subtraction is independent of the others, so application order
// doesn't affect the result.
func (ss *SlotSet) ApplyAvailability(retirements map[int64]interval.Set) {
	for t, itvs := range retirements {
		sid := ss.splitAt(t)
		if sid == 0 {
			continue
		}
		ss.Walk(sid, ss.lastSID(), func(s *types.Slot) {
			s.Itvs = interval.Subtract(s.Itvs, itvs)
		})
	}
}

func (ss *SlotSet) lastSID() int {
	sid := ss.firstSID
	for {
		s := ss.slots[sid]
		if s.Next == 0 {
			return sid
		}
		sid = s.Next
	}
}
