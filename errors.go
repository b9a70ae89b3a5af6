// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package plex

import "github.com/grailbio/base/errors"

// Kind aliases errors.Kind so callers of this package need not import
// github.com/grailbio/base/errors directly just to classify an error.
type Kind = errors.Kind

// Is reports whether err is (or wraps) an error of the given kind.
func Is(kind Kind, err error) bool {
	return errors.Is(kind, err)
}
