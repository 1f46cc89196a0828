package feed

// Feed status values stored in the metadata record.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Metadata is the feed-level portion of a parsed document.
type Metadata struct {
	Title       string
	Link        string
	Description string
	Author      string
	Language    string
	ImageURL    string
	Published   string
	Updated     string
	Categories  []string

	// Declared polling policy (RSS syndication module hints).
	UpdatePeriod    string
	UpdateFrequency string

	// Push subscription capability advertised by the source.
	PushSupported bool
	PushHubURL    string
	PushTopicURL  string
}

// EntryLink is a typed link attached to an entry.
type EntryLink struct {
	Rel  string
	Href string
}

// Entry is one raw entry of a parsed document. GUID carries the RSS guid,
// ID the Atom id; at most one of the two is set, and both may be absent.
type Entry struct {
	GUID        string
	ID          string
	Link        string
	Title       string
	Description string
	Author      string
	Published   string
	Updated     string
	Content     string
	Categories  []string
	Comments    string
	Links       []EntryLink
}

// ParsedFeed is the boundary value produced by the fetcher: a normalized
// view of a raw RSS or Atom document.
type ParsedFeed struct {
	Meta    Metadata
	Entries []Entry
	Version string
}
