// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package ctfir

import "strings"

// ctfKeywords lists the reserved TSDL words that may not be used as a
// struct member, enum label, or declaration name (spec §3.3).
var ctfKeywords = map[string]bool{
	"align": true, "callsite": true, "const": true, "char": true,
	"clock": true, "double": true, "enum": true, "env": true,
	"event": true, "floating_point": true, "float": true, "integer": true,
	"long": true, "short": true, "signed": true, "stream": true,
	"string": true, "struct": true, "trace": true, "typealias": true,
	"typedef": true, "unsigned": true, "variant": true, "void": true,
}

// IsValidIdentifier reports whether name follows the repo's identifier
// grammar: a letter or underscore, followed by letters, digits or
// underscores, and not a reserved TSDL keyword.
func IsValidIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if i == 0 {
			if !isAlpha {
				return false
			}
			continue
		}
		if !isAlpha && !isDigit {
			return false
		}
	}
	if ctfKeywords[strings.ToLower(name)] {
		return false
	}
	return true
}
