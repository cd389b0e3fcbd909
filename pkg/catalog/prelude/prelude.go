// Package prelude registers the built-in remote catalog kinds.
package prelude

import (
	_ "pytc/pkg/catalog/cpython"
	_ "pytc/pkg/catalog/manifest"
	_ "pytc/pkg/catalog/pypy"
)
