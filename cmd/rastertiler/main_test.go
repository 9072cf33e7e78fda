package main

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rastertiler/internal/models"
	"rastertiler/pkg/config"
	"rastertiler/pkg/tiling"
)

func TestTilerParamsFromConfig(t *testing.T) {
	conf := config.DefaultConfig()
	conf.Input.ImagePath = "0.tif"
	conf.Input.LabelPath = "t.tif"
	conf.Output.ImageRole = "input"
	conf.Tiling.OverlapPercent = 25
	conf.Tiling.EdgePolicy = "shrink"
	conf.Tiling.FillValue = 3
	conf.Normalize.BitDepth = 8

	params, err := tilerParams(conf)
	require.NoError(t, err)
	assert.Equal(t, "t.tif", params.LabelPath)
	assert.Equal(t, models.Role("input"), params.ImageRole)
	assert.Equal(t, tiling.EdgeShrink, params.Grid.Edge)
	assert.InDelta(t, 0.25, params.Grid.Overlap.Fraction, 1e-12)
	assert.Equal(t, uint16(3), params.Fill)
	require.NotNil(t, params.Normalizer)
	assert.Equal(t, 255.0, params.Normalizer.MaxValue())

	conf.Normalize.Image = false
	params, err = tilerParams(conf)
	require.NoError(t, err)
	assert.Nil(t, params.Normalizer)
}

func TestTilerParamsRejectsBadConfig(t *testing.T) {
	conf := config.DefaultConfig()
	conf.Input.ImagePath = "0.tif"
	conf.Normalize.BitDepth = 8

	conf.Tiling.OverlapPercent = 100
	_, err := tilerParams(conf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tiling.ErrInvalidSpec))
	conf.Tiling.OverlapPercent = 0

	conf.Tiling.FillValue = -1
	_, err = tilerParams(conf)
	assert.Error(t, err)
	conf.Tiling.FillValue = 0

	conf.Normalize.BitDepth = 0
	_, err = tilerParams(conf)
	assert.Error(t, err, "image normalization without a bit depth or max value")
}

func TestShapeString(t *testing.T) {
	assert.Equal(t, "(256, 256, 1)", shapeString([]int{256, 256, 1}))
	assert.Equal(t, "()", shapeString(nil))
}
