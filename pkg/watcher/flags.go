package watcher

import (
	"fmt"
	"strings"
)

// EventFlag is one bit of a native record's flag word.
type EventFlag uint32

// Native record flags. Values are fixed by the platform.
const (
	MustScanSubDirs    EventFlag = 0x00000001
	UserDropped        EventFlag = 0x00000002
	KernelDropped      EventFlag = 0x00000004
	EventIdsWrapped    EventFlag = 0x00000008
	HistoryDone        EventFlag = 0x00000010
	RootChangedFlag    EventFlag = 0x00000020
	Mount              EventFlag = 0x00000040
	Unmount            EventFlag = 0x00000080
	ItemCreated        EventFlag = 0x00000100
	ItemRemoved        EventFlag = 0x00000200
	ItemInodeMetaMod   EventFlag = 0x00000400
	ItemRenamed        EventFlag = 0x00000800
	ItemModified       EventFlag = 0x00001000
	ItemFinderInfoMod  EventFlag = 0x00002000
	ItemChangeOwner    EventFlag = 0x00004000
	ItemXattrMod       EventFlag = 0x00008000
	ItemIsFile         EventFlag = 0x00010000
	ItemIsDir          EventFlag = 0x00020000
	ItemIsSymlink      EventFlag = 0x00040000
	OwnEvent           EventFlag = 0x00080000
	ItemIsHardlink     EventFlag = 0x00100000
	ItemIsLastHardlink EventFlag = 0x00200000
	ItemCloned         EventFlag = 0x00400000
)

// allFlags is the total enumeration in canonical (ascending bit) order.
// Decoding tests bits in this order; bits outside it are ignored.
var allFlags = []EventFlag{
	MustScanSubDirs,
	UserDropped,
	KernelDropped,
	EventIdsWrapped,
	HistoryDone,
	RootChangedFlag,
	Mount,
	Unmount,
	ItemCreated,
	ItemRemoved,
	ItemInodeMetaMod,
	ItemRenamed,
	ItemModified,
	ItemFinderInfoMod,
	ItemChangeOwner,
	ItemXattrMod,
	ItemIsFile,
	ItemIsDir,
	ItemIsSymlink,
	OwnEvent,
	ItemIsHardlink,
	ItemIsLastHardlink,
	ItemCloned,
}

var flagNames = map[EventFlag]string{
	MustScanSubDirs:    "MustScanSubDirs",
	UserDropped:        "UserDropped",
	KernelDropped:      "KernelDropped",
	EventIdsWrapped:    "EventIdsWrapped",
	HistoryDone:        "HistoryDone",
	RootChangedFlag:    "RootChanged",
	Mount:              "Mount",
	Unmount:            "Unmount",
	ItemCreated:        "ItemCreated",
	ItemRemoved:        "ItemRemoved",
	ItemInodeMetaMod:   "ItemInodeMetaMod",
	ItemRenamed:        "ItemRenamed",
	ItemModified:       "ItemModified",
	ItemFinderInfoMod:  "ItemFinderInfoMod",
	ItemChangeOwner:    "ItemChangeOwner",
	ItemXattrMod:       "ItemXattrMod",
	ItemIsFile:         "ItemIsFile",
	ItemIsDir:          "ItemIsDir",
	ItemIsSymlink:      "ItemIsSymlink",
	OwnEvent:           "OwnEvent",
	ItemIsHardlink:     "ItemIsHardlink",
	ItemIsLastHardlink: "ItemIsLastHardlink",
	ItemCloned:         "ItemCloned",
}

// String returns the flag name, or its hex value for unknown bits.
func (f EventFlag) String() string {
	if name, ok := flagNames[f]; ok {
		return name
	}
	return fmt.Sprintf("EventFlag(%#x)", uint32(f))
}

// ParseEventFlag looks a flag up by name, case-insensitively.
func ParseEventFlag(name string) (EventFlag, error) {
	for flag, n := range flagNames {
		if strings.EqualFold(n, name) {
			return flag, nil
		}
	}
	return 0, fmt.Errorf("unknown event flag %q", name)
}

const (
	// itemMask covers the flags describing a change to an item.
	itemMask = ItemCreated | ItemRemoved | ItemInodeMetaMod | ItemRenamed |
		ItemModified | ItemFinderInfoMod | ItemChangeOwner | ItemXattrMod | ItemCloned

	// metadataMask covers flags describing the item, not the change.
	metadataMask = ItemIsFile | ItemIsDir | ItemIsSymlink | ItemIsHardlink |
		ItemIsLastHardlink | OwnEvent

	// structuralMask covers flags surfaced as notifications.
	structuralMask = MustScanSubDirs | UserDropped | KernelDropped | EventIdsWrapped |
		HistoryDone | RootChangedFlag | Mount | Unmount
)

// FlagSet is the ordered set of flags decoded from one flag word.
type FlagSet []EventFlag

// DecodeFlags returns the flags set in word, in canonical bit order.
// Unknown bits are ignored. The result depends only on word.
func DecodeFlags(word uint32) FlagSet {
	var set FlagSet
	for _, flag := range allFlags {
		if word&uint32(flag) != 0 {
			set = append(set, flag)
		}
	}
	return set
}

// Has reports whether flag is in the set.
func (s FlagSet) Has(flag EventFlag) bool {
	for _, f := range s {
		if f == flag {
			return true
		}
	}
	return false
}

// Word re-encodes the set as a flag word.
func (s FlagSet) Word() uint32 {
	var w uint32
	for _, f := range s {
		w |= uint32(f)
	}
	return w
}

// Strings returns the flag names in set order.
func (s FlagSet) Strings() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.String()
	}
	return names
}

// String joins the flag names with '|'.
func (s FlagSet) String() string {
	return strings.Join(s.Strings(), "|")
}

// Metadata returns the subset describing the item rather than the change.
func (s FlagSet) Metadata() FlagSet {
	return s.filter(metadataMask)
}

// Structural returns the subset surfaced as notifications.
func (s FlagSet) Structural() FlagSet {
	return s.filter(structuralMask)
}

func (s FlagSet) filter(mask EventFlag) FlagSet {
	var out FlagSet
	for _, f := range s {
		if f&mask != 0 {
			out = append(out, f)
		}
	}
	return out
}

// carriesEvent reports whether a record with these flags becomes an Event.
// Records with item flags always do; records with only structural flags
// do not; records with neither still represent a change.
func (s FlagSet) carriesEvent() bool {
	w := EventFlag(s.Word())
	return w&itemMask != 0 || w&structuralMask == 0
}

// kindRule is one row of the classification precedence table.
type kindRule struct {
	mask EventFlag
	kind EventKind
}

// kindPrecedence is evaluated top to bottom; the first matching row wins.
var kindPrecedence = []kindRule{
	{ItemRenamed, Renamed},
	{ItemRemoved, Deleted},
	{ItemCreated, Created},
	{ItemModified | ItemInodeMetaMod | ItemFinderInfoMod | ItemChangeOwner | ItemXattrMod, Updated},
}

// Classify maps a flag set to exactly one EventKind. Metadata and
// structural flags are ignored; a set matching no rule is Updated.
func Classify(s FlagSet) EventKind {
	w := EventFlag(s.Word())
	for _, rule := range kindPrecedence {
		if w&rule.mask != 0 {
			return rule.kind
		}
	}
	return Updated
}

// structuralNotifications maps each structural flag to its notification,
// in canonical bit order.
var structuralNotifications = []struct {
	flag EventFlag
	kind NotificationKind
}{
	{MustScanSubDirs, MustRescan},
	{UserDropped, EventsDropped},
	{KernelDropped, EventsDropped},
	{EventIdsWrapped, EventIDsWrapped},
	{HistoryDone, HistoryReplayDone},
	{RootChangedFlag, RootChanged},
	{Mount, VolumeMounted},
	{Unmount, VolumeUnmounted},
}

// notifications returns the distinct notification kinds raised by s.
func (s FlagSet) notifications() []NotificationKind {
	w := EventFlag(s.Word())
	if w&structuralMask == 0 {
		return nil
	}
	var kinds []NotificationKind
	for _, sn := range structuralNotifications {
		if w&sn.flag == 0 {
			continue
		}
		if len(kinds) > 0 && kinds[len(kinds)-1] == sn.kind {
			continue
		}
		kinds = append(kinds, sn.kind)
	}
	return kinds
}

// CreateFlags tunes a native stream at creation time.
type CreateFlags uint32

// Stream creation flags. Values are fixed by the platform.
const (
	// CreateFlagUseCFTypes delivers paths as native string objects. It is
	// always set internally and need not be requested.
	CreateFlagUseCFTypes CreateFlags = 0x00000001

	// CreateFlagNoDefer delivers the first event after a quiet period
	// immediately instead of waiting for the latency window.
	CreateFlagNoDefer CreateFlags = 0x00000002

	// CreateFlagWatchRoot reports changes to the path leading to each root
	// as RootChanged notifications.
	CreateFlagWatchRoot CreateFlags = 0x00000004

	// CreateFlagIgnoreSelf suppresses events caused by this process.
	CreateFlagIgnoreSelf CreateFlags = 0x00000008

	// CreateFlagFileEvents reports individual files instead of only
	// their parent directories.
	CreateFlagFileEvents CreateFlags = 0x00000010

	// CreateFlagMarkSelf tags events caused by this process with OwnEvent.
	CreateFlagMarkSelf CreateFlags = 0x00000020
)

// knownCreateFlags excludes flags that change the callback's data layout
// (extended data, full history), which the bridge does not decode.
const knownCreateFlags = CreateFlagUseCFTypes | CreateFlagNoDefer | CreateFlagWatchRoot |
	CreateFlagIgnoreSelf | CreateFlagFileEvents | CreateFlagMarkSelf

var createFlagNames = []struct {
	flag CreateFlags
	name string
}{
	{CreateFlagUseCFTypes, "use_cf_types"},
	{CreateFlagNoDefer, "no_defer"},
	{CreateFlagWatchRoot, "watch_root"},
	{CreateFlagIgnoreSelf, "ignore_self"},
	{CreateFlagFileEvents, "file_events"},
	{CreateFlagMarkSelf, "mark_self"},
}

// ParseCreateFlag looks a creation flag up by its config name,
// e.g. "file_events" or "no_defer".
func ParseCreateFlag(name string) (CreateFlags, error) {
	for _, cf := range createFlagNames {
		if strings.EqualFold(cf.name, name) {
			return cf.flag, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown create flag %q", ErrConfig, name)
}

// String joins the flag config names with '|'.
func (c CreateFlags) String() string {
	var names []string
	for _, cf := range createFlagNames {
		if c&cf.flag != 0 {
			names = append(names, cf.name)
		}
	}
	if rest := c &^ knownCreateFlags; rest != 0 {
		names = append(names, fmt.Sprintf("%#x", uint32(rest)))
	}
	return strings.Join(names, "|")
}
