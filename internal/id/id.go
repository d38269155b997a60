package id

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DomainIdentity prefixes every identity token. The version suffix exists so
// a future algorithm can coexist with tokens already stored by older imports.
const DomainIdentity = "importlink/identity/v1"

var (
	nonDigits    = regexp.MustCompile(`\D+`)
	tokenPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
	uuidPattern  = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// hashWithDomain computes SHA256(domain + 0x00 + data), hex encoded.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Token returns the identity token for an origin identifier within a scope
// (the target kind). Both inputs are NFC-normalized so visually identical
// identifiers hash identically. The same pair always yields the same token.
func Token(scope, origin string) string {
	data := make([]byte, 0, len(scope)+len(origin)+1)
	data = append(data, norm.NFC.String(scope)...)
	data = append(data, 0x00)
	data = append(data, norm.NFC.String(origin)...)
	return hashWithDomain(DomainIdentity, data)
}

// ExportHashKey is the attribute key identity entries are stored under.
func ExportHashKey(kind string) string {
	return fmt.Sprintf("_%s_export_hash", kind)
}

// IsExportHashKey reports whether key names an identity entry.
func IsExportHashKey(key string) bool {
	return strings.HasPrefix(key, "_") && strings.HasSuffix(key, "_export_hash") && len(key) > len("__export_hash")
}

// IsToken reports whether s has the shape of an identity token
func IsToken(s string) bool {
	return tokenPattern.MatchString(s)
}

// Split normalizes a raw relation value into origin identifiers: every run
// of non-digit characters becomes one delimiter. An empty or all-non-digit
// input yields a single empty string, which never resolves.
func Split(raw string) []string {
	joined := strings.Trim(nonDigits.ReplaceAllString(raw, ","), ",")
	return strings.Split(joined, ",")
}

// FormatNewID formats a host record id for storage as an attribute value
func FormatNewID(newID int64) string {
	return strconv.FormatInt(newID, 10)
}

// ParseNewID parses a stored host record id
func ParseNewID(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid record id %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid record id %q: must be positive", s)
	}
	return n, nil
}

// IsUUID checks if a string is a valid UUID
func IsUUID(s string) bool {
	return uuidPattern.MatchString(strings.ToLower(s))
}
