package events

import "fmt"

// Topic prefixes for Strata events.
//
// All topics follow the scheme: strata/{category}/{event}. Subscribers
// typically watch strata/# or a single category.
const (
	// TopicPrefix is the base for all Strata topics.
	TopicPrefix = "strata"

	// TopicPrefixPerf is the base for performance events.
	TopicPrefixPerf = "strata/perf"

	// TopicPrefixSchema is the base for schema lifecycle events.
	TopicPrefixSchema = "strata/schema"

	// TopicPrefixSystem is the base for system status topics.
	TopicPrefixSystem = "strata/system"
)

// Topics provides builders for Strata MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// SystemStatus returns the topic for online/offline status.
// Messages on this topic are retained so late subscribers see the last state.
//
// Example: strata/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SlowQuery returns the topic for slow-query alerts for one operation.
//
// Example: strata/perf/slow/resumes_by_owner
func (Topics) SlowQuery(operation string) string {
	return fmt.Sprintf("%s/slow/%s", TopicPrefixPerf, operation)
}

// MigrationApplied returns the topic for applied-migration events.
//
// Example: strata/schema/applied
func (Topics) MigrationApplied() string {
	return fmt.Sprintf("%s/applied", TopicPrefixSchema)
}

// MigrationRolledBack returns the topic for rolled-back-migration events.
//
// Example: strata/schema/rolled_back
func (Topics) MigrationRolledBack() string {
	return fmt.Sprintf("%s/rolled_back", TopicPrefixSchema)
}
