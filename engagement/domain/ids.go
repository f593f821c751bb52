package domain

import (
	"strconv"
	"strings"
)

type UserID int64

type ProviderID int64

type LocationID int64

type CategoryID int64

func (u UserID) String() string     { return strconv.FormatInt(int64(u), 10) }
func (p ProviderID) String() string { return strconv.FormatInt(int64(p), 10) }

// ParseUserID aceita apenas inteiros positivos (ids do transporte).
func ParseUserID(s string) (UserID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 {
		return 0, invalidf("user id %q", s)
	}
	return UserID(v), nil
}

func ParseProviderID(s string) (ProviderID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 {
		return 0, invalidf("provider id %q", s)
	}
	return ProviderID(v), nil
}
