package accounts

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse numbers without a country prefix
const DefaultPhoneRegion = "US"

var errInvalidPhone = errors.New("must be a valid phone number")

// PhoneNumberRule validates that a string parses as a real phone number.
// Numbers without a leading + are read in the given region.
func PhoneNumberRule(region string) validation.Rule {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = DefaultPhoneRegion
	}
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if strings.TrimSpace(s) == "" {
			return nil
		}
		num, err := phonenumbers.Parse(s, region)
		if err != nil || !phonenumbers.IsValidNumber(num) {
			return errInvalidPhone
		}
		return nil
	})
}

// FormatPhoneE164 returns the E.164 form of a valid number, or the input
// unchanged when it does not parse.
func FormatPhoneE164(s, region string) string {
	if region == "" {
		region = DefaultPhoneRegion
	}
	num, err := phonenumbers.Parse(s, strings.ToUpper(region))
	if err != nil {
		return s
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
