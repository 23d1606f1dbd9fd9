package domain

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
)

// RecordID computes the stable id for a FinancialRecord: a hash of source,
// period bounds, and a source-specific disambiguator (e.g. the raw record
// index or an upstream id). Grounded on the teacher's use of crypto/sha256
// for content checksums in cmd/migrate.
func RecordID(source SourceType, periodStart, periodEnd string, disambiguator string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s", source, periodStart, periodEnd, disambiguator)))
	return fmt.Sprintf("%x", sum)[:32]
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9_]+`)

// Slug lowercases name, converts separators to underscores, spells out "&"
// as "and", and strips anything else non-alphanumeric. Grounded on
// original_source/app/parsers/rootfi_parser.py's _generate_account_id.
func Slug(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, "&", "and")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	s = nonAlnum.ReplaceAllString(s, "")
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}

// GenerateAccountID builds an id for an account that arrived without one:
// sourcePrefix + "_" + category + "_" + slug(name), disambiguated against
// seen with an incrementing numeric suffix.
func GenerateAccountID(sourcePrefix, category, name string, seen map[string]bool) string {
	base := fmt.Sprintf("%s_%s_%s", sourcePrefix, category, Slug(name))
	id := base
	n := 2
	for seen[id] {
		id = fmt.Sprintf("%s_%d", base, n)
		n++
	}
	seen[id] = true
	return id
}
