// Package serving implements the on-demand serving instance
// lifecycle: deduplicated creation, idempotent deployment onto the
// cluster, and the periodic garbage collection loop that reclaims
// idle, orphaned or evicted instances.
package serving

import (
	"fmt"
	"regexp"
	"strconv"
)

// namePrefix is the fixed prefix of every workload name managed by
// this controller. The numeric suffix is the instance id.
const namePrefix = "model-serving"

var namePattern = regexp.MustCompile(`^model-serving-(\d+)$`)

// ServiceName encodes an instance id into its workload name.
func ServiceName(id int64) string {
	return fmt.Sprintf("%s-%d", namePrefix, id)
}

// ServiceIDFromName decodes a workload name back into an instance id.
// Names that do not match the controller's pattern report ok=false so
// callers can skip cluster resources that are not ours.
func ServiceIDFromName(name string) (int64, bool) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ServiceBaseURI returns the stable caller-visible address of an
// instance. It depends only on the id, never on cluster state, so it
// is identical across redeploys.
func ServiceBaseURI(id int64) string {
	return fmt.Sprintf("/gateway/%s/%d", namePrefix, id)
}
