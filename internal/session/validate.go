package session

import (
	"fmt"
	"regexp"
)

var (
	nameRegexp   = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)
	userIDRegexp = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)
)

// ValidateName checks that name conforms to session naming rules.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}

// ValidateUserID checks a platform user id before it is placed in a URL path.
func ValidateUserID(id string) error {
	if !userIDRegexp.MatchString(id) {
		return fmt.Errorf("invalid user id %q", id)
	}
	return nil
}
