package transitions

import "time"

// Entry is one immutable row in the role transition log. A nil FromRole marks
// the initial assignment; FromRole equal to ToRole marks an audited event
// that kept the role, such as a denied access attempt or an override change.
// A nil ChangedBy means system-initiated.
type Entry struct {
	ID        int64
	UserID    int64
	FromRole  *string
	ToRole    string
	Reason    string
	ChangedBy *int64
	ChangedAt time.Time
	IPAddress *string
}

// PagingInfo reports pagination state for a log listing.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result bundles log rows with paging information.
type Result struct {
	Rows   []Entry
	Paging PagingInfo
}
