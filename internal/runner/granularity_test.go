package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/microfactory-run/microfactory/pkg/schema"
)

func TestIsAtomic_MaxFilesFromDescription(t *testing.T) {
	g := schema.StepGranularity{MaxFiles: 2}
	assert.False(t, isAtomic(g, &schema.Step{Description: "update main.go"}))
	assert.True(t, isAtomic(g, &schema.Step{Description: "update main.go and handlers.go"}))
}

func TestIsAtomic_MaxFilesWithNoNamedFileAssumesOne(t *testing.T) {
	g := schema.StepGranularity{MaxFiles: 1}
	assert.True(t, isAtomic(g, &schema.Step{Description: "rename the internal config helper"}))
}

func TestIsAtomic_MaxLinesChangedFromWordCount(t *testing.T) {
	g := schema.StepGranularity{MaxLinesChanged: 5}
	assert.False(t, isAtomic(g, &schema.Step{Description: "add a short helper"}))
	assert.True(t, isAtomic(g, &schema.Step{Description: "rewrite the entire request validation pipeline end to end"}))
}

func TestIsAtomic_BoundsUnsetNeverTrip(t *testing.T) {
	g := schema.StepGranularity{}
	assert.False(t, isAtomic(g, &schema.Step{Depth: 100, Description: "a.go b.go c.go d.go e.go f.go"}))
}

func TestEstimatedFileCount_DedupesRepeatedPaths(t *testing.T) {
	assert.Equal(t, 1, estimatedFileCount("touch main.go and then main.go again"))
	assert.Equal(t, 2, estimatedFileCount("touch main.go and util.go"))
	assert.Equal(t, 1, estimatedFileCount("no file mentioned here"))
}
