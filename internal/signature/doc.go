// Package signature implements the signature rule engine used by excavate.
//
// Rules are written in a subset of the YARA rule language:
//
//	rule SearchForText {
//	    meta:
//	        description = "Contains the text AAAABBBBCCCC"
//	    strings:
//	        $text = "AAAABBBBCCCC"
//	        $re = /https?:\/\/[a-z0-9.-]+/ nocase
//	    condition:
//	        $text or $re
//	}
//
// Supported features:
//   - text strings with the nocase, fullword, ascii and private modifiers
//   - regular expression strings (/.../ with the i and s flags)
//   - hex strings with ?? wildcards, [n-m] jumps and (a|b) alternatives
//   - conditions built from $id, #id comparisons, "any/all/none/N of them",
//     "of ($a*, $b)", not, and, or and parentheses
//
// Design decision: All literal strings of all rules are merged into one
// Aho-Corasick automaton so a buffer is scanned once for every literal in the
// ruleset, no matter how many rules are registered. Regular expressions run
// individually afterwards. A compiled Ruleset is immutable and safe for
// concurrent use; the Registry handles late registration by recompiling on
// the next access.
package signature
