package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateInspectMode_AcceptsKnownModesAndEmpty(t *testing.T) {
	for _, mode := range []string{"", "ops", "payloads", "messages", "files"} {
		assert.NoError(t, validateInspectMode(mode))
	}
}

func TestValidateInspectMode_RejectsUnknownMode(t *testing.T) {
	err := validateInspectMode("everything")
	assert.Error(t, err)
}
