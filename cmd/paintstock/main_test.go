package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/paintstock/paintstock/internal/app"
	_ "github.com/paintstock/paintstock/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	assert.True(t, app.InTestMode())
	assert.NotPanics(t, main)
}
