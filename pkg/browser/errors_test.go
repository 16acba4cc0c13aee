package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

func TestClassify(t *testing.T) {
	bg := context.Background()

	assert.NoError(t, classify(bg, "navigate", nil))

	err := classify(bg, "navigate", errors.New("Target closed"))
	assert.ErrorIs(t, err, utils.ErrContextTeardown)

	err = classify(bg, "navigate", errors.New("net::ERR_TIMED_OUT"))
	assert.ErrorIs(t, err, utils.ErrTransientNavigation)
	assert.Contains(t, err.Error(), "navigate")

	cancelled, cancel := context.WithCancel(bg)
	cancel()
	err = classify(cancelled, "navigate", errors.New("context canceled"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, utils.ErrTransientNavigation)
}
