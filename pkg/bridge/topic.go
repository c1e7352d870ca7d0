package bridge

import (
	"fmt"
	"regexp"

	"github.com/giannisaf2/crexdata-public/pkg/workflow"
)

// MaxTopicLength is the longest topic name a Kafka broker accepts.
const MaxTopicLength = 249

var invalidTopicChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// TopicName derives the channel name of a split connection from its four
// endpoint names.
func TopicName(c *workflow.Connection) string {
	raw := fmt.Sprintf("%s_%s_to_%s_%s", c.FromOperator, c.FromPort, c.ToOperator, c.ToPort)
	return ValidTopicName(raw)
}

// ValidTopicName replaces characters Kafka rejects and truncates the name.
func ValidTopicName(name string) string {
	name = invalidTopicChars.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." {
		name = "topic"
	}
	if len(name) > MaxTopicLength {
		name = name[:MaxTopicLength]
	}
	return name
}

// topicSet hands out topic names that are unique within one bridging pass.
type topicSet map[string]struct{}

func (ts topicSet) claim(name string) string {
	candidate := name
	for n := 2; ; n++ {
		if _, taken := ts[candidate]; !taken {
			ts[candidate] = struct{}{}
			return candidate
		}
		suffix := fmt.Sprintf("_%d", n)
		base := name
		if len(base)+len(suffix) > MaxTopicLength {
			base = base[:MaxTopicLength-len(suffix)]
		}
		candidate = base + suffix
	}
}
