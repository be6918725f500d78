// Copyright 2026 The Haulsheet Authors
// SPDX-License-Identifier: Apache-2.0

package calendar

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Price is an hourly rate in hundredths of the sheet's currency unit.
// We store it as an integer so that "139.5" stays exact.
type Price int64

const priceResolution = 100

var (
	errBlankPrice     = errors.New("blank price")
	errNegativePrice  = errors.New("negative price")
	errMalformedPrice = errors.New("malformed price")
)

// String formats the price with two decimals, omitting them for whole amounts.
func (p Price) String() string {
	a, b := int64(p)/priceResolution, int64(p)%priceResolution
	if b == 0 {
		return strconv.FormatInt(a, 10)
	}

	return fmt.Sprintf("%d.%02d", a, b)
}

// MarshalJSON encodes the price as a JSON number.
func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalJSON decodes a JSON number or string.
func (p *Price) UnmarshalJSON(b []byte) error {
	v, err := ParsePrice(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}

	*p = v

	return nil
}

// Float returns the price in currency units.
func (p Price) Float() float64 {
	return float64(p) / priceResolution
}

var thousandsPattern = regexp.MustCompile(`^\d{1,3}(,\d{3})+(\.\d*)?$`)

// parseCents converts the digits after the decimal point to hundredths, rounding
// half up beyond the second decimal.
func parseCents(digits string) (int64, error) {
	if strings.Trim(digits, "0123456789") != "" {
		return 0, errMalformedPrice
	}

	padded := digits + "00"

	cents, err := strconv.ParseInt(padded[:2], 10, 64)
	if err != nil {
		return 0, err
	}

	if len(digits) > 2 && digits[2] >= '5' {
		cents++
	}

	return cents, nil
}

// ParsePrice converts a sheet cell like "139", "$1,250.50", "139,5" or ".5" into a
// Price. Amounts with more than two decimals are rounded to the cent.
func ParsePrice(s string) (Price, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "$")
	s = strings.ReplaceAll(s, " ", "")

	if s == "" {
		return 0, errBlankPrice
	}

	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("%w: %q", errNegativePrice, s)
	}

	if thousandsPattern.MatchString(s) {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		// some vendors write decimals like 139,5
		s = strings.ReplaceAll(s, ",", ".")
	}

	parts := strings.SplitN(s, ".", 2)
	if parts[0] == "" {
		// ".5"
		if len(parts) == 1 || parts[1] == "" {
			return 0, fmt.Errorf("%w: %q", errMalformedPrice, s)
		}

		parts[0] = "0"
	}

	a, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parsing integer part %q: %w", parts[0], err)
	}

	ret := int64(a) * priceResolution

	if len(parts) == 2 {
		fraction, err := parseCents(parts[1])
		if err != nil {
			return 0, fmt.Errorf("parsing fractional part %q: %w", parts[1], err)
		}

		ret += fraction
	}

	return Price(ret), nil
}
