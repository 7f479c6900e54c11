package registry

import "strings"

// Topic naming conventions for broadcast groups.
//
// The global feed is the literal "trucks" topic; region feeds are
// "region:<name>" with the name lowercased so "Avondale" and "avondale"
// address the same group.
const (
	// TopicTrucks is the global feed every observer joins.
	TopicTrucks = "trucks"

	// regionPrefix namespaces region-scoped feeds.
	regionPrefix = "region:"
)

// RegionTopic returns the case-normalized topic name for a region feed.
func RegionTopic(region string) string {
	return regionPrefix + strings.ToLower(strings.TrimSpace(region))
}
