package store

import (
	"slices"
	"strings"
	"time"
)

// TimeFormat is the single timestamp representation used across the store.
const TimeFormat = time.RFC3339

const (
	feedPKPrefix    = "FEED#"
	metaSKPrefix    = "META#"
	itemSKPrefix    = "ITEM#"
	uniqueURLPrefix = "UNIQUE#FEED_URL#"
)

// Key is the two-part primary key of a record.
type Key struct {
	PK string
	SK string
}

// FeedKey returns the key of a feed's metadata record.
func FeedKey(feedID string) Key {
	return Key{PK: feedPKPrefix + feedID, SK: metaSKPrefix + feedID}
}

// ItemKey returns the key of one item within a feed.
func ItemKey(feedID, itemKey string) Key {
	return Key{PK: feedPKPrefix + feedID, SK: itemSKPrefix + itemKey}
}

// UniqueURLKey returns the key of the uniqueness marker for a feed URL.
// Both key parts carry the full marker value.
func UniqueURLKey(feedURL string) Key {
	marker := uniqueURLPrefix + feedURL
	return Key{PK: marker, SK: marker}
}

func (k Key) IsMeta() bool {
	return strings.HasPrefix(k.PK, feedPKPrefix) && strings.HasPrefix(k.SK, metaSKPrefix)
}

// FeedID extracts the feed identifier from a FEED# partition key.
func (k Key) FeedID() string {
	return strings.TrimPrefix(k.PK, feedPKPrefix)
}

// ItemID extracts the item identity key from an ITEM# sort key.
func (k Key) ItemID() string {
	return strings.TrimPrefix(k.SK, itemSKPrefix)
}

// Value is one typed attribute value: a string, a number, a boolean or a
// string set. Exactly one field is populated.
type Value struct {
	S    *string  `json:"S,omitempty"`
	N    *int64   `json:"N,omitempty"`
	BOOL *bool    `json:"BOOL,omitempty"`
	SS   []string `json:"SS,omitempty"`
}

func StringValue(s string) Value {
	return Value{S: &s}
}

func NumberValue(n int64) Value {
	return Value{N: &n}
}

func BoolValue(b bool) Value {
	return Value{BOOL: &b}
}

func StringSetValue(ss []string) Value {
	return Value{SS: ss}
}

// Equal compares two values structurally. String sets compare as sets,
// ignoring order.
func (v Value) Equal(other Value) bool {
	switch {
	case v.S != nil:
		return other.S != nil && *v.S == *other.S
	case v.N != nil:
		return other.N != nil && *v.N == *other.N
	case v.BOOL != nil:
		return other.BOOL != nil && *v.BOOL == *other.BOOL
	case v.SS != nil:
		if other.SS == nil || len(v.SS) != len(other.SS) {
			return false
		}
		a := slices.Clone(v.SS)
		b := slices.Clone(other.SS)
		slices.Sort(a)
		slices.Sort(b)
		return slices.Equal(a, b)
	}
	return other.S == nil && other.N == nil && other.BOOL == nil && other.SS == nil
}

// Attrs is the attribute document of a record. Optional fields follow an
// omit-if-absent rule: the Set* builders drop empty values entirely instead
// of storing empty strings or empty sets, so structural comparison of two
// documents doubles as change detection.
type Attrs map[string]Value

// SetString stores a string attribute, omitting empty values.
func (a Attrs) SetString(name, value string) {
	if value == "" {
		return
	}
	a[name] = StringValue(value)
}

// SetNumber stores a numeric attribute. Zero is a meaningful value
// (e.g. error_count) and is always stored.
func (a Attrs) SetNumber(name string, value int64) {
	a[name] = NumberValue(value)
}

// SetBool stores a boolean attribute. False is always stored.
func (a Attrs) SetBool(name string, value bool) {
	a[name] = BoolValue(value)
}

// SetStringSet stores a string-set attribute, omitting empty sets.
func (a Attrs) SetStringSet(name string, values []string) {
	if len(values) == 0 {
		return
	}
	a[name] = StringSetValue(values)
}

func (a Attrs) GetString(name string) string {
	if v, ok := a[name]; ok && v.S != nil {
		return *v.S
	}
	return ""
}

func (a Attrs) GetNumber(name string) int64 {
	if v, ok := a[name]; ok && v.N != nil {
		return *v.N
	}
	return 0
}

func (a Attrs) GetBool(name string) bool {
	if v, ok := a[name]; ok && v.BOOL != nil {
		return *v.BOOL
	}
	return false
}

func (a Attrs) GetStringSet(name string) []string {
	if v, ok := a[name]; ok {
		return v.SS
	}
	return nil
}

// Equal reports whether two documents hold the same attribute set with
// structurally equal values.
func (a Attrs) Equal(other Attrs) bool {
	if len(a) != len(other) {
		return false
	}
	for name, v := range a {
		ov, ok := other[name]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Record is one stored entity: a feed metadata document, a feed item or a
// uniqueness marker.
type Record struct {
	Key   Key
	Attrs Attrs
}
