package placement

import (
	"fmt"
	"regexp"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// EdgePlatform is the platform whose containers are edge-processing composites.
const EdgePlatform = "rtsa"

// IsEdgePlatform reports whether operators placed on platform run in an
// edge-processing container.
func IsEdgePlatform(platform string) bool {
	return platform == EdgePlatform
}

// ContainerName returns the name of the container generated for a
// (site, platform) pair in run runID.
func ContainerName(site, platform, runID string) string {
	if IsEdgePlatform(platform) {
		return fmt.Sprintf("EdgeProcessingNest (%s_%s)_%s", site, platform, runID)
	}
	return fmt.Sprintf("StreamingNest (%s_%s)_%s", site, platform, runID)
}

var projectNameReplacer = regexp.MustCompile(`[():.\[\] ]`)

// ProjectName folds a container name into the project name used by
// edge-processing deployments.
func ProjectName(container string) string {
	return projectNameReplacer.ReplaceAllString(cases.Lower(language.Und).String(container), "_")
}
