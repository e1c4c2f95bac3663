package anonymize

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/cuemby/caravan/pkg/errtag"
	"github.com/cuemby/caravan/pkg/types"
)

// SyntheticDomain is the reserved domain every synthetic email is
// minted under. The leak sentinel relies on it to tell synthetic
// addresses from real ones.
const SyntheticDomain = "anon.example.org"

// Age bounds applied when a date_of_birth rule declares none
const (
	DefaultMinimumAge = 5
	DefaultMaximumAge = 85
)

const dateLayout = "2006-01-02"

// Synthesize produces a fake value of the declared shape
func Synthesize(f *gofakeit.Faker, syntheticType string, args *types.SyntheticArgs) (string, error) {
	switch syntheticType {
	case "email":
		return strings.ToLower(f.Username()) + "@" + SyntheticDomain, nil
	case "first_name":
		return f.FirstName(), nil
	case "last_name":
		return f.LastName(), nil
	case "name", "full_name":
		return f.Name(), nil
	case "phone_number":
		return f.Phone(), nil
	case "street_address":
		return f.Street(), nil
	case "city":
		return f.City(), nil
	case "zipcode", "postal_code":
		return f.Zip(), nil
	case "date_of_birth":
		minAge, maxAge := DefaultMinimumAge, DefaultMaximumAge
		if args != nil {
			if args.MinimumAge > 0 {
				minAge = args.MinimumAge
			}
			if args.MaximumAge > 0 {
				maxAge = args.MaximumAge
			}
		}
		now := time.Now().UTC()
		earliest := now.AddDate(-maxAge, 0, 0)
		latest := now.AddDate(-minAge, 0, 0)
		return f.DateRange(earliest, latest).Format(dateLayout), nil
	case "user_name", "username":
		return strings.ToLower(f.Username()), nil
	case "ipv4":
		return f.IPv4Address(), nil
	case "url":
		return f.URL(), nil
	default:
		return "", errtag.Configuration.New("unknown synthetic type %q", syntheticType)
	}
}

// Hash produces the salted digest for an original value, truncated to
// the first 16 hex characters
func Hash(algorithm, original, salt string) (string, error) {
	payload := []byte(original + salt)
	switch strings.ToLower(algorithm) {
	case "", "sha256":
		sum := sha256.Sum256(payload)
		return hex.EncodeToString(sum[:])[:16], nil
	case "sha512":
		sum := sha512.Sum512(payload)
		return hex.EncodeToString(sum[:])[:16], nil
	default:
		return "", errtag.Configuration.New("unsupported hash algorithm %q", algorithm)
	}
}

// syntheticKey builds the consistency-map generate closure for a rule
func syntheticGenerator(f *gofakeit.Faker, rule *types.AnonymizationRule) func() (string, error) {
	return func() (string, error) {
		v, err := Synthesize(f, rule.SyntheticType, rule.SyntheticArgs)
		if err != nil {
			return "", fmt.Errorf("rule %s: %w", rule.Name, err)
		}
		return v, nil
	}
}
