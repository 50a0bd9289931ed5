// Package delivery hands accepted files to the downstream file store.
package delivery

import (
	"context"
	"fmt"
	"strings"
)

// Deliverer stores files downstream. Delivering the same name to the same
// path twice overwrites the first copy.
type Deliverer interface {
	Deliver(ctx context.Context, path, fileName string, data []byte) error
	// Ping checks that the target is reachable.
	Ping(ctx context.Context) error
}

// Path returns the directory a survey's files are delivered into:
// {root}/{surveyID}/unchecked.
func Path(root, surveyID string) string {
	if root != "/" {
		root = strings.TrimRight(root, "/")
	} else {
		root = ""
	}
	return fmt.Sprintf("%s/%s/unchecked", root, surveyID)
}
