// Copyright (c) 2026 libjoin contributors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !linux

package membk

import "errors"

var errNoNuma = errors.New("membk: NUMA binding unsupported on this platform")

func mbind(b []byte, numa int) error {
	return errNoNuma
}
