package binder

import (
	"net/url"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var scanCodeRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// urlValidator allows the empty string or an absolute http(s) URL, which is
// what the backend accepts for product images.
func urlValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	u, err := url.Parse(value)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// scanCodeValidator checks values typed or scanned into the dispatch and print
// screens. Scanners append whitespace which mod:"trim" strips beforehand.
func scanCodeValidator(fl validator.FieldLevel) bool {
	return scanCodeRE.MatchString(fl.Field().String())
}
