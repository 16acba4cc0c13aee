package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

// Substrings of CDP/rod errors raised when the page, context, or browser goes away mid-call
var teardownMarkers = []string{
	"target closed",
	"session with given id not found",
	"no target with given id",
	"connection closed",
	"browser has disconnected",
	"use of closed network connection",
}

// IsTeardown reports whether err means the browsing context was destroyed underneath the caller
func IsTeardown(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, utils.ErrContextTeardown) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range teardownMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// classify maps a raw driver error onto the pipeline's sentinels.
// parent is the caller's context; its cancellation is returned unchanged.
func classify(parent context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if perr := parent.Err(); perr != nil {
		return perr
	}
	if IsTeardown(err) {
		return fmt.Errorf("%w: %s: %v", utils.ErrContextTeardown, op, err)
	}
	return fmt.Errorf("%w: %s: %v", utils.ErrTransientNavigation, op, err)
}
