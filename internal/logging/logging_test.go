package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureAppliesLevel(t *testing.T) {
	logger, err := Configure("warn")
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
}

func TestConfigureRejectsUnknownLevel(t *testing.T) {
	_, err := Configure("deafening")
	assert.Error(t, err)
}
